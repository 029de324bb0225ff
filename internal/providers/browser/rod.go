package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodLauncher starts a local Chromium through go-rod.
type RodLauncher struct {
	logger *zap.Logger
}

// NewRodLauncher creates the go-rod backend.
func NewRodLauncher(logger *zap.Logger) *RodLauncher {
	return &RodLauncher{logger: logger}
}

func (l *RodLauncher) Name() string { return "rod" }

// Launch starts Chromium with the profile's user data dir and connects to it.
func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	ln := launcher.New().
		Leakless(false).
		Headless(opts.Headless).
		UserDataDir(opts.UserDataDir).
		Delete("enable-automation").
		Delete("no-startup-window")
	if opts.ExecutablePath != "" {
		ln = ln.Bin(opts.ExecutablePath)
	}
	for _, arg := range opts.Args {
		name, value, ok := splitArg(arg)
		if ok {
			ln = ln.Set(flags.Flag(name), value)
		} else {
			ln = ln.Set(flags.Flag(name))
		}
	}

	type launched struct {
		url string
		err error
	}
	ch := make(chan launched, 1)
	go func() {
		u, err := ln.Launch()
		ch <- launched{u, err}
	}()

	var controlURL string
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("failed to start chromium: %w", res.err)
		}
		controlURL = res.url
	case <-ctx.Done():
		ln.Kill()
		return nil, ctx.Err()
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("failed to connect to chromium: %w", err)
	}

	return newRodBrowser(l.Name(), b, opts, func() { ln.Kill() }, l.logger), nil
}

type rodBrowser struct {
	engine  string
	browser *rod.Browser
	opts    LaunchOptions
	cleanup func()
	logger  *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newRodBrowser(engine string, b *rod.Browser, opts LaunchOptions, cleanup func(), logger *zap.Logger) *rodBrowser {
	rb := &rodBrowser{
		engine:  engine,
		browser: b,
		opts:    opts,
		cleanup: cleanup,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go func() {
		// The event stream ends when the CDP connection closes.
		for range b.Event() {
		}
		close(rb.done)
	}()
	return rb
}

func (b *rodBrowser) Engine() string { return b.engine }

func (b *rodBrowser) Disconnected() <-chan struct{} { return b.done }

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	// Detach from the request context so the page outlives it.
	return &rodPage{page: p.Context(context.Background()), logger: b.logger}, nil
}

func (b *rodBrowser) Pages(ctx context.Context) ([]Page, error) {
	pages, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, &rodPage{page: p.Context(context.Background()), logger: b.logger})
	}
	return out, nil
}

func (b *rodBrowser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.browser.Close()
		if b.cleanup != nil {
			b.cleanup()
		}
	})
	return err
}

type rodPage struct {
	page   *rod.Page
	logger *zap.Logger
}

func (p *rodPage) with(ctx context.Context) *rod.Page {
	return p.page.Context(ctx)
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.with(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.with(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Type(ctx context.Context, selector, text string) error {
	el, err := p.with(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Input(text)
}

func (p *rodPage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.with(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.with(ctx).Screenshot(false, nil)
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.with(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Close(ctx context.Context) error {
	return p.with(ctx).Close()
}

func (p *rodPage) AddInitScript(ctx context.Context, script string) error {
	_, err := p.with(ctx).EvalOnNewDocument(script)
	return err
}

func (p *rodPage) SetUserAgent(ctx context.Context, ua, acceptLanguage, platform string) error {
	return proto.EmulationSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: acceptLanguage,
		Platform:       platform,
	}.Call(p.with(ctx))
}

func (p *rodPage) SetViewport(ctx context.Context, width, height int) error {
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}.Call(p.with(ctx))
}

func (p *rodPage) EmulateMedia(ctx context.Context, features map[string]string) error {
	list := make([]*proto.EmulationMediaFeature, 0, len(features))
	for name, value := range features {
		list = append(list, &proto.EmulationMediaFeature{Name: name, Value: value})
	}
	return proto.EmulationSetEmulatedMedia{Features: list}.Call(p.with(ctx))
}

func (p *rodPage) SetTimezone(ctx context.Context, timezoneID string) error {
	return proto.EmulationSetTimezoneOverride{TimezoneID: timezoneID}.Call(p.with(ctx))
}

func (p *rodPage) SetGeolocation(ctx context.Context, lat, lon float64) error {
	page := p.with(ctx)
	err := proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{proto.BrowserPermissionTypeGeolocation},
	}.Call(page.Browser())
	if err != nil {
		return err
	}
	accuracy := 50.0
	return proto.EmulationSetGeolocationOverride{
		Latitude:  &lat,
		Longitude: &lon,
		Accuracy:  &accuracy,
	}.Call(page)
}

func (p *rodPage) Authenticate(ctx context.Context, username, password string) error {
	page := p.page
	wait := page.EachEvent(func(e *proto.FetchRequestPaused) {
		_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(page)
	}, func(e *proto.FetchAuthRequired) {
		err := proto.FetchContinueWithAuth{
			RequestID: e.RequestID,
			AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
				Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
				Username: username,
				Password: password,
			},
		}.Call(page)
		if err != nil {
			p.logger.Debug("proxy auth response failed", zap.Error(err))
		}
	})
	go wait()

	return proto.FetchEnable{HandleAuthRequests: true}.Call(p.with(ctx))
}
