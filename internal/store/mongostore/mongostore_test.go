//go:build integration

package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type MongoStoreIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	uri       string
	store     *Store
}

func (s *MongoStoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	endpoint, err := container.Endpoint(s.ctx, "mongodb")
	s.Require().NoError(err)
	s.uri = endpoint
}

func (s *MongoStoreIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *MongoStoreIntegrationSuite) SetupTest() {
	store, err := Open(s.ctx, s.uri, "chatfetch_test")
	s.Require().NoError(err)
	s.store = store
}

func (s *MongoStoreIntegrationSuite) TearDownTest() {
	s.Require().NoError(s.store.Drop(s.ctx))
	s.Require().NoError(s.store.Close())
}

func TestMongoStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(MongoStoreIntegrationSuite))
}

func text(v string) *string { return &v }

func (s *MongoStoreIntegrationSuite) TestConversationCursorIsMonotonic() {
	s.Require().NoError(s.store.UpsertConversation(s.ctx, &domain.Conversation{ID: 42, Name: "Team", Kind: domain.KindGroup, LastSyncedCursor: 100}))
	s.Require().NoError(s.store.UpsertConversation(s.ctx, &domain.Conversation{ID: 42, LastSyncedCursor: 30}))

	got, err := s.store.GetConversation(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(int64(100), got.LastSyncedCursor)
	s.Equal("Team", got.Name)

	_, err = s.store.GetConversation(s.ctx, 7)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *MongoStoreIntegrationSuite) TestUpsertMessagesIsIdempotent() {
	batch := []domain.Message{
		{ConversationID: 1, ID: 1, SenderID: 7, Timestamp: 1000, Text: text("one")},
		{ConversationID: 1, ID: 2, SenderID: 8, Timestamp: 2000},
	}
	n, err := s.store.UpsertMessages(s.ctx, batch)
	s.Require().NoError(err)
	s.Equal(2, n)

	s.Require().NoError(s.store.AttachMedia(s.ctx, 1, 2, "/media/2.ogg"))

	batch[0].Text = text("changed")
	batch = append(batch, domain.Message{ConversationID: 1, ID: 3, Timestamp: 3000})
	n, err = s.store.UpsertMessages(s.ctx, batch)
	s.Require().NoError(err)
	s.Equal(1, n)

	msgs, err := s.store.FindMessages(s.ctx, 1, domain.MessageFilter{})
	s.Require().NoError(err)
	s.Require().Len(msgs, 3)
	s.Equal("one", msgs[0].TextOrEmpty())
	s.Equal("/media/2.ogg", msgs[1].MediaRef)
	s.Nil(msgs[2].Text)
	s.Equal(domain.MediaNone, msgs[2].MediaKind)

	s.ErrorIs(s.store.AttachMedia(s.ctx, 1, 99, "x"), domain.ErrNotFound)
}

func (s *MongoStoreIntegrationSuite) TestFindAndStats() {
	for _, c := range []domain.Conversation{
		{ID: 1, Name: "go nuts", Username: "golangnuts", Kind: domain.KindGroup},
		{ID: 2, Name: "Alice", Kind: domain.KindDirect},
		{ID: 3, Name: "Empty", Kind: domain.KindGroup},
	} {
		s.Require().NoError(s.store.UpsertConversation(s.ctx, &c))
	}
	_, err := s.store.UpsertMessages(s.ctx, []domain.Message{
		{ConversationID: 1, ID: 1, SenderID: 7, Timestamp: 1000, Text: text("Deploy started")},
		{ConversationID: 1, ID: 2, SenderID: 8, Timestamp: 2000, Text: text("lunch")},
		{ConversationID: 1, ID: 3, SenderID: 0, Timestamp: 3000, Text: text("deploy done")},
		{ConversationID: 2, ID: 1, SenderID: 9, Timestamp: 5000},
	})
	s.Require().NoError(err)

	convs, err := s.store.FindConversations(s.ctx, domain.ConversationFilter{Query: "GO"})
	s.Require().NoError(err)
	s.Require().Len(convs, 1)
	s.Equal(int64(1), convs[0].ID)

	convs, err = s.store.FindConversations(s.ctx, domain.ConversationFilter{})
	s.Require().NoError(err)
	s.Equal([]int64{2, 3, 1}, ids(convs))

	msgs, err := s.store.FindMessages(s.ctx, 1, domain.MessageFilter{Text: "deploy", Reverse: true})
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal(int64(3), msgs[0].ID)

	one, err := s.store.Stats(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(3), one.Messages)
	s.Equal(int64(2), one.Senders)
	s.Equal(int64(3), one.LastMessage.ID)

	all, err := s.store.Stats(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(int64(4), all.Messages)
	s.Equal(int64(3), all.Conversations)
	s.Require().Len(all.Activity, 3)
	s.Equal(int64(1), all.Activity[0].ConversationID)
	s.Equal(int64(0), all.Activity[2].Messages)

	_, err = s.store.Stats(s.ctx, 99)
	s.ErrorIs(err, domain.ErrNotFound)
}

func ids(convs []domain.Conversation) []int64 {
	out := make([]int64, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}
