package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// ErrNotConfigured is returned when the token or chat id is missing.
var ErrNotConfigured = errors.New("notify: telegram token or chat id not configured")

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
	logger *slog.Logger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithAPIBase overrides the Bot API base URL (tests, proxies).
func WithAPIBase(base string) TelegramOption {
	return func(t *Telegram) { t.client.SetBaseURL(base) }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) TelegramOption {
	return func(t *Telegram) { t.client.SetTimeout(d) }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) TelegramOption {
	return func(t *Telegram) { t.logger = l }
}

// NewTelegram creates a notifier for one chat.
func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		client: resty.New().
			SetBaseURL(DefaultTelegramAPI).
			SetTimeout(10 * time.Second).
			SetRetryCount(0),
		token:  token,
		chatID: chatID,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Notify sends message once. Any transport error or non-2xx status is
// returned; there is no retry.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	if t.token == "" || t.chatID == "" {
		return ErrNotConfigured
	}

	res, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.token).
		SetFormData(map[string]string{
			"chat_id": t.chatID,
			"text":    message,
		}).
		Post("/bot{token}/sendMessage")
	if err != nil {
		// resty embeds the URL, which carries the token.
		return fmt.Errorf("notify: telegram send: %w", redact(err, t.token))
	}
	if !res.IsSuccess() {
		return fmt.Errorf("notify: telegram status %d", res.StatusCode())
	}

	t.logger.DebugContext(ctx, "notify: telegram sent", "chat_id", t.chatID, "status", res.StatusCode())
	return nil
}

// redactedError hides the bot token from an error message but keeps the
// chain for errors.Is.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}
