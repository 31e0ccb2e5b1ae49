package momotest

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless bool          // default true
	Timeout  time.Duration // per operation, default 30s
}

// DefaultBrowserConfig returns headless Chrome with a 30s timeout.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{Headless: true, Timeout: 30 * time.Second}
}

// BrowserClient is a Chrome instance with fake media devices, used to
// act as the remote side of a P2P session.
type BrowserClient struct {
	browser *rod.Browser
	page    *rod.Page
	timeout time.Duration
}

// NewBrowserClient launches Chrome with fake camera and microphone,
// auto-granted permissions and no sandbox.
func NewBrowserClient(cfg BrowserConfig) (*BrowserClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("use-fake-device-for-media-stream").
		Set("use-fake-ui-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}
	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}
	return &BrowserClient{browser: browser, timeout: cfg.Timeout}, nil
}

// Navigate opens url in a new page and waits for it to load.
func (c *BrowserClient) Navigate(url string) (*rod.Page, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	c.page = page
	if err := page.Timeout(c.timeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.Timeout(c.timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}
	return page, nil
}

// Eval runs a JavaScript function expression on the current page.
func (c *BrowserClient) Eval(js string, args ...any) (any, error) {
	if c.page == nil {
		return nil, errors.New("no page open, call Navigate first")
	}
	res, err := c.page.Timeout(c.timeout).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return res.Value.Val(), nil
}

// Click clicks the element matching selector.
func (c *BrowserClient) Click(selector string) error {
	if c.page == nil {
		return errors.New("no page open, call Navigate first")
	}
	el, err := c.page.Timeout(c.timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.WaitEnabled(); err != nil {
		return fmt.Errorf("wait %s enabled: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// WaitConnected polls the P2P page until its peer connection reports
// connected or the timeout elapses.
func (c *BrowserClient) WaitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var last any
	for time.Now().Before(deadline) {
		v, err := c.Eval(`() => window.p2pState ? window.p2pState().connection : 'none'`)
		if err == nil && v == "connected" {
			return nil
		}
		last = v
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("browser peer not connected after %s (state %v)", timeout, last)
}

// Close shuts the browser down. Always call it to avoid orphaned Chrome
// processes.
func (c *BrowserClient) Close() error {
	if c.browser != nil {
		return c.browser.Close()
	}
	return nil
}
