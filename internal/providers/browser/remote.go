package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// RemoteLauncher asks a browser worker over HTTP to start Chromium and
// connects to the returned DevTools endpoint.
type RemoteLauncher struct {
	client *resty.Client
	logger *zap.Logger
}

type remoteLaunchRequest struct {
	RequestID string   `json:"requestId"`
	ProfileID int      `json:"profileId"`
	Headless  bool     `json:"headless"`
	Args      []string `json:"args"`
	ProxyUser string   `json:"proxyUsername,omitempty"`
	ProxyPass string   `json:"proxyPassword,omitempty"`
}

type remoteLaunchResponse struct {
	ID         string `json:"id"`
	WSEndpoint string `json:"wsEndpoint"`
}

// NewRemoteLauncher creates a launcher for the worker at baseURL.
func NewRemoteLauncher(baseURL string, logger *zap.Logger) *RemoteLauncher {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 5 * time.Second
	retry.Logger = nil

	client := resty.NewWithClient(retry.StandardClient()).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(90*time.Second).
		SetHeader("Content-Type", "application/json")

	return &RemoteLauncher{client: client, logger: logger}
}

func (l *RemoteLauncher) Name() string { return "remote" }

func (l *RemoteLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	reqID := uuid.NewString()
	body := remoteLaunchRequest{
		RequestID: reqID,
		ProfileID: opts.ProfileID,
		Headless:  opts.Headless,
		Args:      opts.Args,
	}
	if t := opts.Proxy; t != nil && t.HasCredentials() {
		body.ProxyUser = t.Username
		body.ProxyPass = t.Password
	}

	var out remoteLaunchResponse
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", reqID).
		SetBody(body).
		SetResult(&out).
		Post("/api/browsers")
	if err != nil {
		return nil, fmt.Errorf("worker request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("worker returned %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	if out.WSEndpoint == "" {
		return nil, fmt.Errorf("worker returned no endpoint")
	}

	release := func() {
		_, err := l.client.R().Delete("/api/browsers/" + out.ID)
		if err != nil {
			l.logger.Warn("failed to release remote browser", zap.String("id", out.ID), zap.Error(err))
		}
	}

	b := rod.New().ControlURL(out.WSEndpoint)
	if err := b.Connect(); err != nil {
		release()
		return nil, fmt.Errorf("failed to connect to remote browser: %w", err)
	}

	l.logger.Debug("remote browser ready",
		zap.Int("profile_id", opts.ProfileID),
		zap.String("request_id", reqID),
		zap.String("remote_id", out.ID),
	)
	return newRodBrowser(l.Name(), b, opts, release, l.logger), nil
}
