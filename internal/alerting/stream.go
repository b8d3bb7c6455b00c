package alerting

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamOptions configure the Redis stream channel.
type StreamOptions struct {
	Stream   string
	MaxLen   int64
	Currency string
}

// StreamNotifier appends price-drop events to a Redis stream for downstream
// consumers.
type StreamNotifier struct {
	client   redis.UniversalClient
	stream   string
	maxLen   int64
	currency string
	logger   zerolog.Logger
}

func NewStreamNotifier(client redis.UniversalClient, opts StreamOptions, logger zerolog.Logger) *StreamNotifier {
	if opts.Stream == "" {
		opts.Stream = "pricewatch:drops"
	}
	return &StreamNotifier{
		client:   client,
		stream:   opts.Stream,
		maxLen:   opts.MaxLen,
		currency: currencyOrDefault(opts.Currency),
		logger:   logger.With().Str("component", "alert_stream").Logger(),
	}
}

func (n *StreamNotifier) Notify(ctx context.Context, note Notification) error {
	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"id":            note.Item.ID,
			"url":           note.Item.URL,
			"title":         note.Item.Title,
			"mode":          string(note.Item.Mode),
			"price":         note.Price.String(),
			"desired_price": note.Item.DesiredPrice.String(),
			"checked_at":    note.CheckedAt.UTC().Format(time.RFC3339),
			"message":       RenderMessage(note, n.currency),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	id, err := n.client.XAdd(ctx, args).Result()
	if err != nil {
		return deliveryError("redis_stream", "xadd %s: %w", n.stream, err)
	}
	n.logger.Debug().Str("stream", n.stream).Str("entry", id).Msg("event published")
	return nil
}

var _ Notifier = (*StreamNotifier)(nil)
