package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromedpLauncher starts a local Chromium through chromedp.
type ChromedpLauncher struct {
	logger *zap.Logger
}

// NewChromedpLauncher creates the chromedp backend.
func NewChromedpLauncher(logger *zap.Logger) *ChromedpLauncher {
	return &ChromedpLauncher{logger: logger}
}

func (l *ChromedpLauncher) Name() string { return "chromedp" }

func (l *ChromedpLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.UserDataDir(opts.UserDataDir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("enable-automation", false),
	}
	if opts.ExecutablePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecutablePath))
	}
	for _, arg := range opts.Args {
		name, value, ok := splitArg(arg)
		if ok {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := attach(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chromium: %w", err)
	}

	b := &cdpBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
		done:        make(chan struct{}),
	}
	go b.watch()
	return b, nil
}

type cdpBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func (b *cdpBrowser) watch() {
	var lost <-chan struct{}
	if c := chromedp.FromContext(b.ctx); c != nil && c.Browser != nil {
		lost = c.Browser.LostConnection
	}
	select {
	case <-b.ctx.Done():
	case <-lost:
	}
	close(b.done)
}

func (b *cdpBrowser) Engine() string { return "chromedp" }

func (b *cdpBrowser) Disconnected() <-chan struct{} { return b.done }

func (b *cdpBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	if err := attach(ctx, tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &cdpPage{ctx: tabCtx, cancel: cancel, logger: b.logger}, nil
}

func (b *cdpBrowser) Pages(ctx context.Context) ([]Page, error) {
	infos, err := chromedp.Targets(b.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	var out []Page
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(info.TargetID))
		if err := attach(ctx, tabCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to attach page: %w", err)
		}
		out = append(out, &cdpPage{ctx: tabCtx, cancel: cancel, targetID: info.TargetID, logger: b.logger})
	}
	return out, nil
}

func (b *cdpBrowser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = chromedp.Cancel(b.ctx)
		b.allocCancel()
	})
	return err
}

// attach performs the first Run on a chromedp context. That Run binds the
// browser or tab lifetime to the context it sees, so it runs on cdpCtx
// itself; ctx only bounds how long we wait.
func attach(ctx, cdpCtx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(cdpCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cdpPage struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	logger   *zap.Logger
}

// run executes actions on the tab while honouring the caller's ctx.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *cdpPage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *cdpPage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *cdpPage) Close(ctx context.Context) error {
	err := p.run(ctx, page.Close())
	p.cancel()
	return err
}

func (p *cdpPage) AddInitScript(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

func (p *cdpPage) SetUserAgent(ctx context.Context, ua, acceptLanguage, platform string) error {
	return p.run(ctx, emulation.SetUserAgentOverride(ua).
		WithAcceptLanguage(acceptLanguage).
		WithPlatform(platform))
}

func (p *cdpPage) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
}

func (p *cdpPage) EmulateMedia(ctx context.Context, features map[string]string) error {
	list := make([]*emulation.MediaFeature, 0, len(features))
	for name, value := range features {
		list = append(list, &emulation.MediaFeature{Name: name, Value: value})
	}
	return p.run(ctx, emulation.SetEmulatedMedia().WithFeatures(list))
}

func (p *cdpPage) SetTimezone(ctx context.Context, timezoneID string) error {
	return p.run(ctx, emulation.SetTimezoneOverride(timezoneID))
}

func (p *cdpPage) SetGeolocation(ctx context.Context, lat, lon float64) error {
	return p.run(ctx,
		cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation}),
		emulation.SetGeolocationOverride().WithLatitude(lat).WithLongitude(lon).WithAccuracy(50),
	)
}

func (p *cdpPage) Authenticate(ctx context.Context, username, password string) error {
	tab := p.ctx
	chromedp.ListenTarget(tab, func(ev any) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(tab, fetch.ContinueRequest(ev.RequestID))
			}()
		case *fetch.EventAuthRequired:
			go func() {
				err := chromedp.Run(tab, fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}))
				if err != nil {
					p.logger.Debug("proxy auth response failed", zap.Error(err))
				}
			}()
		}
	})
	return p.run(ctx, network.Enable(), fetch.Enable().WithHandleAuthRequests(true))
}
