// Package browser provides headless Chrome sessions via Rod and the
// fixed-size session pool used by crawl workers.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Config defines browser configuration.
type Config struct {
	Headless          bool          `json:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `json:"navigation_timeout" yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `json:"element_timeout" yaml:"element_timeout"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height" yaml:"viewport_height"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	ExtraHeaders      map[string]string `json:"extra_headers" yaml:"extra_headers"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		NavigationTimeout: 45 * time.Second,
		ElementTimeout:    10 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		IgnoreHTTPSErrors: true,
	}
}

// Page is the minimal capability surface crawl code needs from a browser
// page. Session implements it on top of Rod; tests implement it with fakes.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// URL returns the page's current URL after any redirects.
	URL(ctx context.Context) (string, error)
	// Title returns the document title.
	Title(ctx context.Context) (string, error)
	// HTML returns the serialized DOM.
	HTML(ctx context.Context) (string, error)
	// Screenshot captures a PNG of the viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	// Eval runs a JS function expression and returns its JSON-encoded result.
	Eval(ctx context.Context, js string) (json.RawMessage, error)
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Fill sets an input's value directly.
	Fill(ctx context.Context, selector, value string) error
	// Type focuses an input and sends individual keystrokes.
	Type(ctx context.Context, selector, value string) error
	// Select chooses an option of a <select> by value or label.
	Select(ctx context.Context, selector, value string) error
	// SetChecked checks or unchecks a checkbox/radio.
	SetChecked(ctx context.Context, selector string, checked bool) error
	// PressEnter sends the Enter key to the element matching selector.
	PressEnter(ctx context.Context, selector string) error
	// WaitVisible waits until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// WaitIdle waits for network idle, returning early at timeout.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	// ClearBrowserData clears cookies and web storage for the session.
	ClearBrowserData(ctx context.Context) error
}

// Session wraps one independent Rod browser with a single page. At most
// one worker holds a session at a time; the pool owns the free list.
type Session struct {
	id      string
	config  Config
	browser *rod.Browser
	page    *rod.Page
}

// NewSession launches a fresh browser and opens its page.
func NewSession(id string, config Config) (*Session, error) {
	l := launcher.New().Headless(config.Headless)
	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  config.ViewportWidth,
		Height: config.ViewportHeight,
	})

	if config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: config.UserAgent,
		}.Call(page)
	}

	if len(config.ExtraHeaders) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range config.ExtraHeaders {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
	}

	return &Session{
		id:      id,
		config:  config,
		browser: b,
		page:    page,
	}, nil
}

// ID returns the session's pool-assigned identifier.
func (s *Session) ID() string {
	return s.id
}

// Page returns the session's page capability surface.
func (s *Session) Page() Page {
	return s
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.config.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// URL returns the page's current URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	result, err := s.Eval(ctx, `() => document.title`)
	if err != nil {
		return "", err
	}
	var title string
	if err := json.Unmarshal(result, &title); err != nil {
		return "", err
	}
	return title, nil
}

// HTML returns the serialized DOM.
func (s *Session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Screenshot captures a PNG of the viewport.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Eval runs a JS function expression and returns its JSON-encoded result.
func (s *Session) Eval(ctx context.Context, js string) (json.RawMessage, error) {
	result, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return nil, err
	}
	return result.Value.MarshalJSON()
}

// element resolves selector with the configured element timeout.
func (s *Session) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := s.page.Context(ctx).Timeout(s.config.ElementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", selector, err)
	}
	return el, nil
}

// Click clicks the first element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %q: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Fill sets an input's value directly, replacing existing content.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(value)
}

// Type focuses an input and sends keystrokes one at a time. Slower than
// Fill but triggers per-key handlers on reactive forms.
func (s *Session) Type(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	for _, r := range value {
		if err := s.page.Keyboard.Type(input.Key(r)); err != nil {
			return err
		}
	}
	return nil
}

// Select chooses an option of a <select> by value or visible label.
func (s *Session) Select(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Select([]string{value}, true, rod.SelectorTypeText)
}

// SetChecked checks or unchecks a checkbox/radio input.
func (s *Session) SetChecked(ctx context.Context, selector string, checked bool) error {
	js := fmt.Sprintf(`() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		if (el.checked !== %t) { el.click(); }
		return el.checked === %t;
	}`, selector, checked, checked)

	result, err := s.Eval(ctx, js)
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(result, &ok); err != nil || !ok {
		return fmt.Errorf("set checked %q: element missing or state unchanged", selector)
	}
	return nil
}

// PressEnter sends the Enter key to the element matching selector.
func (s *Session) PressEnter(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	return el.Type(input.Enter)
}

// WaitVisible waits until selector matches a visible element.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.config.ElementTimeout
	}
	page := s.page.Context(ctx).Timeout(timeout)
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return el.WaitVisible()
}

// WaitIdle waits for network idle, returning without error at timeout.
// In-flight XHR past the deadline is the page's problem, not ours.
func (s *Session) WaitIdle(ctx context.Context, timeout time.Duration) error {
	page := s.page.Context(ctx).Timeout(timeout)
	wait := page.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ClearBrowserData clears cookies and web storage so the next lease
// starts from a clean, unauthenticated state.
func (s *Session) ClearBrowserData(ctx context.Context) error {
	if err := (proto.NetworkClearBrowserCookies{}).Call(s.page.Context(ctx)); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	_, err := s.Eval(ctx, `() => {
		try { localStorage.clear(); } catch (e) {}
		try { sessionStorage.clear(); } catch (e) {}
		return true;
	}`)
	if err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	return nil
}

// Close tears down the page and browser.
func (s *Session) Close() error {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}
