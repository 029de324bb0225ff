// Package browsertest provides in-memory browsers for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/providers/browser"
)

// ErrClosed is returned by pages and browsers after Close.
var ErrClosed = errors.New("target closed")

// PNG is a 1x1 image returned by Screenshot.
var PNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// Page records every call. Fail maps an operation ("navigate", "click",
// "type", "waitSelector", "screenshot", "addInitScript", ...) to the error
// it should return.
type Page struct {
	mu          sync.Mutex
	url         string
	closed      bool
	calls       []string
	initScripts []string
	Fail        map[string]error
	// Delay is applied to Navigate, honouring ctx.
	Delay time.Duration
}

// NewPage creates a page showing url.
func NewPage(url string) *Page {
	return &Page{url: url, Fail: map[string]error{}}
}

func (p *Page) do(op, detail string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if detail != "" {
		p.calls = append(p.calls, op+" "+detail)
	} else {
		p.calls = append(p.calls, op)
	}
	if p.closed {
		return ErrClosed
	}
	return p.Fail[op]
}

// Calls returns the recorded operations in order.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// InitScripts returns the scripts installed with AddInitScript.
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initScripts...)
}

// Closed reports whether the page was closed.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := p.do("navigate", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) Click(_ context.Context, selector string) error {
	return p.do("click", selector)
}

func (p *Page) Type(_ context.Context, selector, text string) error {
	return p.do("type", selector+"="+text)
}

func (p *Page) WaitSelector(_ context.Context, selector string, _ time.Duration) error {
	return p.do("waitSelector", selector)
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	if err := p.do("screenshot", ""); err != nil {
		return nil, err
	}
	return PNG, nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	return p.url, nil
}

func (p *Page) Close(context.Context) error {
	if err := p.do("close", ""); err != nil {
		return err
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *Page) AddInitScript(_ context.Context, script string) error {
	if err := p.do("addInitScript", ""); err != nil {
		return err
	}
	p.mu.Lock()
	p.initScripts = append(p.initScripts, script)
	p.mu.Unlock()
	return nil
}

func (p *Page) SetUserAgent(_ context.Context, ua, _, _ string) error {
	return p.do("setUserAgent", ua)
}

func (p *Page) SetViewport(_ context.Context, width, height int) error {
	return p.do("setViewport", fmt.Sprintf("%dx%d", width, height))
}

func (p *Page) EmulateMedia(context.Context, map[string]string) error {
	return p.do("emulateMedia", "")
}

func (p *Page) SetTimezone(_ context.Context, tz string) error {
	return p.do("setTimezone", tz)
}

func (p *Page) SetGeolocation(_ context.Context, lat, lon float64) error {
	return p.do("setGeolocation", fmt.Sprintf("%g,%g", lat, lon))
}

func (p *Page) Authenticate(_ context.Context, username, _ string) error {
	return p.do("authenticate", username)
}

// Browser is a fake browser holding fake pages.
type Browser struct {
	engine string

	mu        sync.Mutex
	pages     []*Page
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
	// PageFail is copied into every page the browser opens.
	PageFail map[string]error
}

// NewBrowser creates a browser with one blank page open.
func NewBrowser(engine string) *Browser {
	return &Browser{
		engine: engine,
		pages:  []*Page{NewPage("about:blank")},
		done:   make(chan struct{}),
	}
}

func (b *Browser) Engine() string { return b.engine }

func (b *Browser) NewPage(context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	p := NewPage("about:blank")
	for k, v := range b.PageFail {
		p.Fail[k] = v
	}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *Browser) Pages(context.Context) ([]browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	var out []browser.Page
	for _, p := range b.pages {
		if !p.Closed() {
			out = append(out, p)
		}
	}
	return out, nil
}

// FakePages returns every page ever opened, closed ones included.
func (b *Browser) FakePages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

func (b *Browser) Disconnected() <-chan struct{} { return b.done }

// Crash simulates the browser process exiting on its own.
func (b *Browser) Crash() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.closeOnce.Do(func() { close(b.done) })
}

// Closed reports whether Close or Crash was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) Close() error {
	b.mu.Lock()
	b.closed = true
	for _, p := range b.pages {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	}
	b.mu.Unlock()
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

// Launcher returns fake browsers, or Err when set.
type Launcher struct {
	name string

	mu       sync.Mutex
	Err      error
	launches []browser.LaunchOptions
	browsers []*Browser
	// PageFail is copied into every browser launched.
	PageFail map[string]error
}

// NewLauncher creates a launcher reporting name.
func NewLauncher(name string) *Launcher {
	return &Launcher{name: name}
}

func (l *Launcher) Name() string { return l.name }

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	b := NewBrowser(l.name)
	b.PageFail = l.PageFail
	for k, v := range l.PageFail {
		b.pages[0].Fail[k] = v
	}
	l.browsers = append(l.browsers, b)
	return b, nil
}

// Launches returns the options of every launch attempt.
func (l *Launcher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.launches...)
}

// Browsers returns every browser handed out.
func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.browsers...)
}

// SetErr changes the launch error.
func (l *Launcher) SetErr(err error) {
	l.mu.Lock()
	l.Err = err
	l.mu.Unlock()
}
