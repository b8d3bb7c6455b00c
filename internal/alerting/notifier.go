package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pricewatch/internal/tracking"
	"pricewatch/internal/version"
)

// Notification carries one price-drop event.
type Notification struct {
	Item      tracking.Item
	Price     decimal.Decimal
	CheckedAt time.Time
}

// Notifier delivers a notification to one or more channels.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// DeliveryError reports a channel that failed to accept a notification.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func deliveryError(channel string, format string, args ...any) error {
	return &DeliveryError{Channel: channel, Err: fmt.Errorf(format, args...)}
}

// TelegramOptions configure the Telegram channel.
type TelegramOptions struct {
	BotToken string
	ChatID   string
	APIBase  string
	Timeout  time.Duration
	Currency string
}

// TelegramNotifier posts HTML messages through the Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	currency string
	client   *http.Client
	logger   zerolog.Logger
}

func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.APIBase == "" {
		opts.APIBase = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  strings.TrimRight(opts.APIBase, "/"),
		currency: currencyOrDefault(opts.Currency),
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage. A non-2xx status or ok=false is a DeliveryError.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	return n.Send(ctx, RenderMessage(note, n.currency))
}

// Send posts an already formatted HTML message.
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return deliveryError("telegram", "marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return deliveryError("telegram", "create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgentTag())

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return deliveryError("telegram", "send request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Description != "" {
			return deliveryError("telegram", "status %d: %s", resp.StatusCode, result.Description)
		}
		return deliveryError("telegram", "status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return deliveryError("telegram", "ok=false: %s", result.Description)
	}

	n.logger.Info().Str("chat_id", n.chatID).Msg("message sent")
	return nil
}

// LogNotifier writes the alert to the log. It is the fallback when no channel is
// enabled so drops are still visible.
type LogNotifier struct {
	currency string
	logger   zerolog.Logger
}

func NewLogNotifier(currency string, logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		currency: currencyOrDefault(currency),
		logger:   logger.With().Str("component", "alert_log").Logger(),
	}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("id", note.Item.ID).
		Str("title", note.Item.Label()).
		Str("price", FormatPrice(n.currency, note.Price)).
		Str("desired", FormatPrice(n.currency, note.Item.DesiredPrice)).
		Msg("price drop")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
