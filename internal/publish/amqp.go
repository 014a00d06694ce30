// Package publish forwards sync events from the in-process bus to RabbitMQ
// so that other services can follow ingestion progress.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/chatfetch/internal/bus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Config describes the AMQP target. An empty URL disables publishing.
type Config struct {
	URL      string
	Exchange string
	// RoutingKey prefixes the event kind, e.g. "chatfetch" gives
	// "chatfetch.sync.completed". Empty routes by the event kind alone.
	RoutingKey string
	// Queue, when set, is declared durable and bound to every sync event.
	Queue string
}

// Enabled reports whether events should be published at all.
func (c Config) Enabled() bool { return c.URL != "" }

func (c Config) routingKey(kind string) string {
	if c.RoutingKey == "" {
		return kind
	}
	return c.RoutingKey + "." + kind
}

// AMQP publishes events to a durable topic exchange.
type AMQP struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  *zap.Logger
}

// Dial connects to the broker and declares the exchange, and the queue if configured.
func Dial(cfg Config, logger *zap.Logger) (*AMQP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*AMQP, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	if cfg.Queue != "" {
		q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
		if err != nil {
			return fail("declare queue", err)
		}
		if err := ch.QueueBind(q.Name, cfg.routingKey("sync.#"), cfg.Exchange, false, nil); err != nil {
			return fail("bind queue", err)
		}
	}

	logger.Info("connected to rabbitmq",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", cfg.Queue),
		zap.String("routing_key", cfg.RoutingKey),
	)

	return &AMQP{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  logger.Named("publish"),
	}, nil
}

// Publish sends one event as a persistent JSON message.
func (a *AMQP) Publish(ctx context.Context, evt bus.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = a.channel.PublishWithContext(ctx,
		a.cfg.Exchange,
		a.cfg.routingKey(evt.Kind),
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    evt.ID,
			Type:         evt.Kind,
			Timestamp:    evt.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Kind, err)
	}
	a.logger.Debug("published event", zap.String("kind", evt.Kind), zap.String("event_id", evt.ID))
	return nil
}

// Close closes the channel and the connection.
func (a *AMQP) Close() error {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Sink receives forwarded events. *AMQP implements it.
type Sink interface {
	Publish(ctx context.Context, evt bus.Event) error
}

// Forwarder copies sync events from the bus to a Sink until stopped.
type Forwarder struct {
	bus     *bus.Bus
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewForwarder creates a forwarder. Each publish is bounded by timeout.
func NewForwarder(b *bus.Bus, sink Sink, timeout time.Duration, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{bus: b, sink: sink, timeout: timeout, logger: logger.Named("publish")}
}

// Start subscribes to sync events and forwards them in the background.
func (f *Forwarder) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})

	events, unsub := f.bus.Subscribe("sync.", 256)
	go func() {
		defer close(f.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				f.forward(ctx, evt)
			}
		}
	}()
}

func (f *Forwarder) forward(ctx context.Context, evt bus.Event) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.sink.Publish(ctx, evt); err != nil {
		f.logger.Warn("failed to forward event",
			zap.String("kind", evt.Kind),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
	}
}

// Stop ends forwarding and waits for the background goroutine.
func (f *Forwarder) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}
