package triage

import (
	"context"
	"log/slog"
	"time"

	"github.com/reelgate/reelgate/internal/messaging"
	"github.com/reelgate/reelgate/internal/metrics"
)

const reconnectDelay = 5 * time.Second

// Consumer owns the long-lived inbound message stream. It keeps the
// stream open for the process lifetime, reconnecting when the transport
// closes it, and hands each message to the engine.
type Consumer struct {
	logger  *slog.Logger
	client  messaging.Client
	engine  *Engine
	metrics *metrics.Metrics
}

// NewConsumer creates a stream consumer over an established client.
func NewConsumer(log *slog.Logger, client messaging.Client, engine *Engine, m *metrics.Metrics) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		logger:  log.With(slog.String("component", "consumer")),
		client:  client,
		engine:  engine,
		metrics: m,
	}
}

// Run consumes messages until ctx is cancelled. Per-message failures are
// absorbed by the engine; only ctx cancellation ends the loop.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		stream, err := c.client.Stream(ctx)
		if err != nil {
			c.logger.Error("opening message stream failed",
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
				continue
			}
		}
		c.logger.Info("message stream open")

		if err := c.consume(ctx, stream); err != nil {
			return err
		}

		// Stream closed by the transport; reconnect.
		c.logger.Warn("message stream closed, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, stream <-chan messaging.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-stream:
			if !ok {
				return nil
			}
			if c.metrics != nil {
				c.metrics.MessagesReceived.Inc()
			}
			c.engine.HandleMessage(ctx, msg)
		}
	}
}
