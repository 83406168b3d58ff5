// Package render drives a headless Chrome session to produce a stable DOM
// snapshot of one page. Every Render call owns its browser: it is launched
// (or connected) on entry and released on every exit path.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const teardownTimeout = 10 * time.Second

// DefaultUserAgent is a desktop Chrome UA string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config configures a Browser.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local headless Chrome.
	RemoteURL string

	// Bin overrides the Chrome binary used by the launcher.
	Bin string

	// WaitSelector must become visible before the DOM is captured.
	WaitSelector string

	NavigateTimeout time.Duration // default 60s
	VisibleTimeout  time.Duration // default 45s
	SettleDelay     time.Duration // pause after the selector is visible; zero disables

	// ScrollY is passed to window.scrollTo to trigger lazy content. Default 800.
	ScrollY int

	UserAgent      string
	ViewportWidth  int // default 1920
	ViewportHeight int // default 1080

	// ResourceBlocking lists resource types to block: images, fonts, media,
	// stylesheets, scripts, or any DevTools resource type name.
	ResourceBlocking []string

	// ScreenshotPath receives a PNG of the page when rendering fails.
	// Empty disables diagnostic capture.
	ScreenshotPath string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 60 * time.Second
	}
	if c.VisibleTimeout <= 0 {
		c.VisibleTimeout = 45 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ScrollY == 0 {
		c.ScrollY = 800
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 1080
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Snapshot is a fully rendered document.
type Snapshot struct {
	URL        string
	HTML       string
	RenderedAt time.Time
}

// Browser renders pages with a fresh Chrome per call.
type Browser struct {
	cfg Config
}

// New creates a Browser. No process is started until Render.
func New(cfg Config) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg}
}

// Render loads pageURL, scrolls, waits for WaitSelector to be visible and
// returns the outer HTML. Failures are *Error values; a screenshot is taken
// before teardown when ScreenshotPath is set.
func (b *Browser) Render(ctx context.Context, pageURL string) (Snapshot, error) {
	log := b.cfg.Logger

	sess, err := b.open(ctx)
	if err != nil {
		return Snapshot{}, &Error{Stage: StageLaunch, URL: pageURL, Err: err}
	}
	defer sess.close(log)

	html, rerr := b.load(ctx, sess.page, pageURL)
	if rerr != nil {
		rerr.Screenshot = b.capture(sess.page)
		return Snapshot{}, rerr
	}

	log.Info("render: page captured", "url", pageURL, "bytes", len(html))
	return Snapshot{URL: pageURL, HTML: html, RenderedAt: time.Now()}, nil
}

type session struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

// close runs on a detached context: the run context may already be done.
func (s *session) close(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if s.page != nil {
		if err := s.page.Context(ctx).Close(); err != nil {
			log.Debug("render: close page", "error", err)
		}
	}
	if s.browser != nil {
		if err := s.browser.Context(ctx).Close(); err != nil {
			log.Warn("render: close browser", "error", err)
		}
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
}

func (b *Browser) open(ctx context.Context) (*session, error) {
	log := b.cfg.Logger
	sess := &session{}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Context(ctx).Headless(true)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch: %w", err)
		}
		wsURL = u
		sess.lnch = l
		log.Debug("render: launched local chrome", "url", wsURL)
	} else {
		log.Debug("render: connecting to remote", "url", wsURL)
	}

	sess.browser = rod.New().Context(ctx).ControlURL(wsURL)
	if err := sess.browser.Connect(); err != nil {
		sess.browser = nil
		sess.close(log)
		return nil, fmt.Errorf("render: connect: %w", err)
	}

	page, err := stealth.Page(sess.browser)
	if err != nil {
		sess.close(log)
		return nil, fmt.Errorf("render: create page: %w", err)
	}
	sess.page = page

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
		log.Warn("render: set user agent", "error", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.ViewportWidth,
		Height:            b.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn("render: set viewport", "error", err)
	}

	if len(b.cfg.ResourceBlocking) > 0 {
		set, unknown := blockedTypes(b.cfg.ResourceBlocking)
		if len(unknown) > 0 {
			log.Warn("render: unknown resource types ignored", "types", unknown)
		}
		if len(set) > 0 {
			blockResources(page, set)
		}
	}

	return sess, nil
}

func (b *Browser) load(ctx context.Context, page *rod.Page, pageURL string) (string, *Error) {
	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return "", &Error{Stage: StageNavigate, URL: pageURL, Err: classify(navCtx, err)}
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("render: wait load", "url", pageURL, "error", err)
	}

	if _, err := page.Context(ctx).Eval(fmt.Sprintf(`() => window.scrollTo(0, %d)`, b.cfg.ScrollY)); err != nil {
		return "", &Error{Stage: StageScroll, URL: pageURL, Err: classify(ctx, err)}
	}

	if b.cfg.WaitSelector != "" {
		visCtx, cancel := context.WithTimeout(ctx, b.cfg.VisibleTimeout)
		defer cancel()
		el, err := page.Context(visCtx).Element(b.cfg.WaitSelector)
		if err == nil {
			err = el.WaitVisible()
		}
		if err != nil {
			return "", &Error{Stage: StageWaitVisible, URL: pageURL, Err: classify(visCtx, err)}
		}
	}

	if b.cfg.SettleDelay > 0 {
		select {
		case <-time.After(b.cfg.SettleDelay):
		case <-ctx.Done():
			return "", &Error{Stage: StageSettle, URL: pageURL, Err: ctx.Err()}
		}
	}

	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", &Error{Stage: StageContent, URL: pageURL, Err: classify(ctx, err)}
	}
	return html, nil
}

// capture writes a diagnostic screenshot and returns its path, or "" when
// disabled or failed.
func (b *Browser) capture(page *rod.Page) string {
	path := b.cfg.ScreenshotPath
	if path == "" || page == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	data, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		b.cfg.Logger.Warn("render: screenshot failed", "error", err)
		return ""
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.cfg.Logger.Warn("render: screenshot dir", "error", err)
			return ""
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		b.cfg.Logger.Warn("render: write screenshot", "path", path, "error", err)
		return ""
	}
	b.cfg.Logger.Info("render: diagnostic screenshot saved", "path", path)
	return path
}

// classify folds deadline expiry into ErrTimeout.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
