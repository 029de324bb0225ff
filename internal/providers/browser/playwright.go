package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// PlaywrightLauncher starts Chromium persistent contexts through the
// Playwright driver. The driver process starts on first use.
type PlaywrightLauncher struct {
	logger *zap.Logger

	once   sync.Once
	pw     *playwright.Playwright
	runErr error
}

// NewPlaywrightLauncher creates the playwright backend.
func NewPlaywrightLauncher(logger *zap.Logger) *PlaywrightLauncher {
	return &PlaywrightLauncher{logger: logger}
}

func (l *PlaywrightLauncher) Name() string { return "playwright" }

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.once.Do(func() {
		l.pw, l.runErr = playwright.Run(&playwright.RunOptions{Verbose: false})
	})
	return l.pw, l.runErr
}

func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	pw, err := l.driver()
	if err != nil {
		return nil, fmt.Errorf("playwright driver unavailable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp := opts.Fingerprint
	launch := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(opts.Headless),
		Args:              opts.Args,
		IgnoreDefaultArgs: []string{"--enable-automation"},
		Timeout:           remainingMs(ctx),
	}
	if opts.ExecutablePath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	if fp.Screen.Width > 0 && fp.Screen.Height > 0 {
		launch.Viewport = &playwright.Size{Width: fp.Screen.Width, Height: fp.Screen.Height}
	}
	if fp.UA != "" {
		launch.UserAgent = playwright.String(fp.UA)
	}
	if fp.Language != "" {
		launch.Locale = playwright.String(fp.Language)
	}
	if fp.TimezoneID != "" {
		launch.TimezoneId = playwright.String(fp.TimezoneID)
	}
	if t := opts.Proxy; t != nil {
		launch.Proxy = &playwright.Proxy{Server: t.ServerArg()}
		if t.HasCredentials() {
			launch.Proxy.Username = playwright.String(t.Username)
			launch.Proxy.Password = playwright.String(t.Password)
		}
	}

	bc, err := pw.Chromium.LaunchPersistentContext(opts.UserDataDir, launch)
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	b := &pwBrowser{context: bc, logger: l.logger, done: make(chan struct{})}
	bc.OnClose(func(playwright.BrowserContext) { b.markClosed() })
	return b, nil
}

// Close stops the driver process.
func (l *PlaywrightLauncher) Close() error {
	if l.pw == nil {
		return nil
	}
	return l.pw.Stop()
}

func remainingMs(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return &ms
}

type pwBrowser struct {
	context playwright.BrowserContext
	logger  *zap.Logger

	done     chan struct{}
	doneOnce sync.Once
}

func (b *pwBrowser) markClosed() {
	b.doneOnce.Do(func() { close(b.done) })
}

func (b *pwBrowser) Engine() string { return "playwright" }

func (b *pwBrowser) Disconnected() <-chan struct{} { return b.done }

func (b *pwBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &pwPage{page: p, context: b.context}, nil
}

func (b *pwBrowser) Pages(ctx context.Context) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages := b.context.Pages()
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, &pwPage{page: p, context: b.context})
	}
	return out, nil
}

func (b *pwBrowser) Close() error {
	err := b.context.Close()
	b.markClosed()
	return err
}

type pwPage struct {
	page    playwright.Page
	context playwright.BrowserContext

	cdpOnce sync.Once
	cdp     playwright.CDPSession
	cdpErr  error
}

func (p *pwPage) send(ctx context.Context, method string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.cdpOnce.Do(func() {
		p.cdp, p.cdpErr = p.context.NewCDPSession(p.page)
	})
	if p.cdpErr != nil {
		return p.cdpErr
	}
	_, err := p.cdp.Send(method, params)
	return err
}

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: remainingMs(ctx)})
	return err
}

func (p *pwPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: remainingMs(ctx)})
}

func (p *pwPage) Type(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Fill(text, playwright.LocatorFillOptions{Timeout: remainingMs(ctx)})
}

func (p *pwPage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := float64(timeout.Milliseconds())
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: &ms,
		State:   playwright.WaitForSelectorStateVisible,
	})
	return err
}

func (p *pwPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Screenshot()
}

func (p *pwPage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *pwPage) Close(ctx context.Context) error {
	return p.page.Close()
}

func (p *pwPage) AddInitScript(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

func (p *pwPage) SetUserAgent(ctx context.Context, ua, acceptLanguage, platform string) error {
	return p.send(ctx, "Emulation.setUserAgentOverride", map[string]any{
		"userAgent":      ua,
		"acceptLanguage": acceptLanguage,
		"platform":       platform,
	})
}

func (p *pwPage) SetViewport(ctx context.Context, width, height int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.SetViewportSize(width, height)
}

func (p *pwPage) EmulateMedia(ctx context.Context, features map[string]string) error {
	list := make([]map[string]any, 0, len(features))
	for name, value := range features {
		list = append(list, map[string]any{"name": name, "value": value})
	}
	return p.send(ctx, "Emulation.setEmulatedMedia", map[string]any{"features": list})
}

// SetTimezone is a no-op: the timezone is fixed when the context launches
// and Chromium rejects a second override.
func (p *pwPage) SetTimezone(ctx context.Context, timezoneID string) error {
	return ctx.Err()
}

func (p *pwPage) SetGeolocation(ctx context.Context, lat, lon float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.context.GrantPermissions([]string{"geolocation"}); err != nil {
		return err
	}
	return p.context.SetGeolocation(&playwright.Geolocation{Latitude: lat, Longitude: lon})
}

// Authenticate is a no-op: proxy credentials are passed at launch.
func (p *pwPage) Authenticate(ctx context.Context, username, password string) error {
	return nil
}
