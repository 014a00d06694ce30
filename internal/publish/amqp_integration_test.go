//go:build integration

package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/matheus3301/chatfetch/internal/bus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

type AMQPIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
}

func (s *AMQPIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	s.amqpURL, err = container.AmqpURL(s.ctx)
	s.Require().NoError(err)
}

func (s *AMQPIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestAMQPIntegrationSuite(t *testing.T) {
	suite.Run(t, new(AMQPIntegrationSuite))
}

func (s *AMQPIntegrationSuite) TestPublishSyncEvent() {
	cfg := Config{URL: s.amqpURL, Exchange: "chatfetch-test", RoutingKey: "chatfetch", Queue: "sync-events-test"}
	pub, err := Dial(cfg, nil)
	s.Require().NoError(err)
	defer pub.Close()

	evt := bus.NewEvent(bus.SyncCompleted, bus.SyncProgress{ConversationID: 42, Stored: 7, Cursor: 1200})
	s.Require().NoError(pub.Publish(s.ctx, evt))

	msg := s.consume(cfg.Queue)
	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
	s.Equal("chatfetch.sync.completed", msg.RoutingKey)
	s.Equal(evt.ID, msg.MessageId)

	var got struct {
		Kind    string           `json:"kind"`
		Payload bus.SyncProgress `json:"payload"`
	}
	s.Require().NoError(json.Unmarshal(msg.Body, &got))
	s.Equal(bus.SyncCompleted, got.Kind)
	s.Equal(int64(42), got.Payload.ConversationID)
	s.Equal(7, got.Payload.Stored)
}

func (s *AMQPIntegrationSuite) TestForwarderDeliversBusEvents() {
	cfg := Config{URL: s.amqpURL, Exchange: "chatfetch-forward", Queue: "sync-events-forward"}
	pub, err := Dial(cfg, nil)
	s.Require().NoError(err)
	defer pub.Close()

	b := bus.New()
	f := NewForwarder(b, pub, time.Second, nil)
	f.Start()
	defer f.Stop()

	b.Publish(bus.NewEvent(bus.SyncStarted, bus.SyncProgress{ConversationID: 9}))

	msg := s.consume(cfg.Queue)
	s.Equal(bus.SyncStarted, msg.Type)
}

func (s *AMQPIntegrationSuite) consume(queue string) amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(queue, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return msg
	case <-time.After(5 * time.Second):
		s.FailNow("timeout waiting for message")
		return amqp.Delivery{}
	}
}
