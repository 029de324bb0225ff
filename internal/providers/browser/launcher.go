package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/domain/proxy"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/monitoring"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/resilience"
	"go.uber.org/zap"
)

// ErrNoEngines is returned by a chain with nothing to try.
var ErrNoEngines = errors.New("no browser engines configured")

// LaunchOptions describes one browser launch.
type LaunchOptions struct {
	ProfileID      int
	UserDataDir    string
	ExecutablePath string
	Headless       bool
	// Args are full Chromium switches ("--name" or "--name=value").
	Args        []string
	Proxy       *proxy.Tunnel
	Fingerprint fingerprint.Fingerprint
}

// Page is one tab of a running browser.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)
	Close(ctx context.Context) error

	AddInitScript(ctx context.Context, script string) error
	SetUserAgent(ctx context.Context, ua, acceptLanguage, platform string) error
	SetViewport(ctx context.Context, width, height int) error
	EmulateMedia(ctx context.Context, features map[string]string) error
	SetTimezone(ctx context.Context, timezoneID string) error
	SetGeolocation(ctx context.Context, lat, lon float64) error
	// Authenticate answers proxy auth challenges with the given credentials.
	Authenticate(ctx context.Context, username, password string) error
}

// Browser is a running browser instance owned by one session.
type Browser interface {
	Engine() string
	NewPage(ctx context.Context) (Page, error)
	Pages(ctx context.Context) ([]Page, error)
	// Disconnected is closed when the browser exits or the connection drops.
	Disconnected() <-chan struct{}
	Close() error
}

// Launcher starts browsers through one automation backend.
type Launcher interface {
	Name() string
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

type guarded struct {
	Launcher
	breaker *resilience.Breaker
}

// Chain tries launchers in order and returns the first browser that starts.
type Chain struct {
	launchers []guarded
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// NewChain wraps each launcher in its own circuit breaker.
func NewChain(logger *zap.Logger, launchers ...Launcher) *Chain {
	c := &Chain{logger: logger}
	for _, l := range launchers {
		c.launchers = append(c.launchers, guarded{
			Launcher: l,
			breaker: resilience.New(l.Name(), resilience.Settings{
				Cooldown: 30 * time.Second,
				Trip: func(counts resilience.Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
				OnStateChange: func(name string, from, to resilience.State) {
					logger.Warn("launcher breaker changed state",
						zap.String("engine", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()),
					)
				},
			}),
		})
	}
	return c
}

// WithMetrics records launch attempts per engine.
func (c *Chain) WithMetrics(m *monitoring.Metrics) *Chain {
	c.metrics = m
	return c
}

// Engines lists the configured engines in order.
func (c *Chain) Engines() []string {
	names := make([]string, len(c.launchers))
	for i, l := range c.launchers {
		names[i] = l.Name()
	}
	return names
}

// Launch returns the first successful browser. When every engine fails it
// returns the last error.
func (c *Chain) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	if len(c.launchers) == 0 {
		return nil, ErrNoEngines
	}

	var lastErr error
	for _, l := range c.launchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timer := monitoring.NewTimer(c.metrics, l.Name())
		b, err := resilience.Do(ctx, l.breaker, func(ctx context.Context) (Browser, error) {
			return l.Launch(ctx, opts)
		})
		timer.Stop(err)
		if err == nil {
			c.logger.Info("browser launched",
				zap.Int("profile_id", opts.ProfileID),
				zap.String("engine", l.Name()),
			)
			return b, nil
		}

		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%s: %w", l.Name(), err)
		}
		c.logger.Warn("browser engine failed, trying next",
			zap.Int("profile_id", opts.ProfileID),
			zap.String("engine", l.Name()),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// Close releases launchers that hold resources, such as a driver process.
func (c *Chain) Close() error {
	var errs []error
	for _, l := range c.launchers {
		if closer, ok := l.Launcher.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}
