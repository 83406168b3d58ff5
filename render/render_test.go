package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockedTypes(t *testing.T) {
	set, unknown := blockedTypes([]string{"images", "Fonts", "XHR", "websocket", "document", "gifs"})

	assert.True(t, set[proto.NetworkResourceTypeImage])
	assert.True(t, set[proto.NetworkResourceTypeFont])
	assert.True(t, set[proto.NetworkResourceTypeXHR])
	assert.True(t, set[proto.NetworkResourceTypeWebSocket])
	assert.False(t, set[proto.NetworkResourceTypeMedia])
	assert.False(t, set[proto.NetworkResourceTypeDocument])
	assert.Equal(t, []string{"document", "gifs"}, unknown)
}

func TestBlockedTypes_Empty(t *testing.T) {
	set, unknown := blockedTypes(nil)
	assert.Empty(t, set)
	assert.Empty(t, unknown)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.defaults()

	assert.Equal(t, 60*time.Second, cfg.NavigateTimeout)
	assert.Equal(t, 45*time.Second, cfg.VisibleTimeout)
	assert.Equal(t, time.Duration(0), cfg.SettleDelay)
	assert.Equal(t, 800, cfg.ScrollY)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, 1920, cfg.ViewportWidth)
	assert.Equal(t, 1080, cfg.ViewportHeight)
	assert.NotNil(t, cfg.Logger)
}

func TestClassify(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	err := classify(expired, errors.New("navigation aborted"))
	assert.ErrorIs(t, err, ErrTimeout)

	err = classify(context.Background(), context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	plain := errors.New("net::ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, plain, classify(context.Background(), plain))
}

func TestError(t *testing.T) {
	inner := fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
	var err error = &Error{Stage: StageWaitVisible, URL: "https://example.test", Err: inner}

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.Timeout())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "wait_visible")
}

// Browser tests need a Chrome binary; set STOCKWATCH_BROWSER_TESTS=1 to run them.
func requireBrowser(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("STOCKWATCH_BROWSER_TESTS") == "" {
		t.Skip("set STOCKWATCH_BROWSER_TESTS=1 to run headless browser tests")
	}
}

func TestRender_Page(t *testing.T) {
	requireBrowser(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div style="height:2000px"></div>
<div id="mw-customcollapsible-Current"><div class="fruit-stock">ok</div></div></body></html>`)
	}))
	defer srv.Close()

	b := New(Config{WaitSelector: "#mw-customcollapsible-Current", VisibleTimeout: 10 * time.Second})
	snap, err := b.Render(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, snap.HTML, "fruit-stock")
	assert.Equal(t, srv.URL, snap.URL)
}

func TestRender_TimeoutCapturesScreenshot(t *testing.T) {
	requireBrowser(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>no stock here</p></body></html>`)
	}))
	defer srv.Close()

	shot := filepath.Join(t.TempDir(), "debug_view.png")
	b := New(Config{
		WaitSelector:   "#mw-customcollapsible-Current",
		VisibleTimeout: time.Second,
		ScreenshotPath: shot,
	})
	_, err := b.Render(context.Background(), srv.URL)
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, StageWaitVisible, rerr.Stage)
	assert.True(t, rerr.Timeout())
	assert.Equal(t, shot, rerr.Screenshot)
	assert.FileExists(t, shot)
}
