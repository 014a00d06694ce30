// Package mongostore is the MongoDB-backed cache of conversations and messages.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// Store implements domain.Store on top of two MongoDB collections.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	convs  *mongo.Collection
	msgs   *mongo.Collection
}

var _ domain.Store = (*Store)(nil)

// Open connects to uri, pings the server and makes sure the indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client: client,
		db:     db,
		convs:  db.Collection(conversationsCollection),
		msgs:   db.Collection(messagesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.convs: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "name", Value: 1}}},
		},
		s.msgs: {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "message_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "text", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes both collections. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// UpsertConversation writes the record keyed by conversation_id. The cursor
// and sync timestamp go through $max so they never move backwards.
func (s *Store) UpsertConversation(ctx context.Context, c *domain.Conversation) error {
	kind := c.Kind
	if kind == "" {
		kind = domain.KindDirect
	}
	set := bson.M{
		"username":          c.Username,
		"kind":              kind,
		"participant_count": c.ParticipantCount,
		"fully_downloaded":  c.FullyDownloaded,
		"oldest_synced_id":  c.OldestSyncedID,
		"inaccessible":      c.Inaccessible,
		"access_error":      c.AccessError,
		"updated_at":        time.Now().UnixMilli(),
	}
	if c.Name != "" {
		set["name"] = c.Name
	}
	update := bson.M{
		"$set": set,
		"$max": bson.M{
			"last_synced_cursor": c.LastSyncedCursor,
			"last_synced_at":     c.LastSyncedAt,
		},
	}
	_, err := s.convs.UpdateOne(ctx,
		bson.M{"conversation_id": c.ID},
		update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert conversation %d: %w", c.ID, err)
	}
	return nil
}

// GetConversation returns domain.ErrNotFound for unknown ids.
func (s *Store) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.convs.FindOne(ctx, bson.M{"conversation_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertMessages inserts messages that are not cached yet. Existing documents
// are matched on (conversation_id, message_id) and left untouched.
func (s *Store) UpsertMessages(ctx context.Context, msgs []domain.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(msgs))
	for _, m := range msgs {
		mediaKind := m.MediaKind
		if mediaKind == "" {
			mediaKind = domain.MediaNone
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{
				{Key: "conversation_id", Value: m.ConversationID},
				{Key: "message_id", Value: m.ID},
			}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"sender_id":   m.SenderID,
				"timestamp":   m.Timestamp,
				"text":        m.Text,
				"media_kind":  mediaKind,
				"media_ref":   m.MediaRef,
				"reply_to_id": m.ReplyToID,
				"created_at":  time.Now().UnixMilli(),
			}}).
			SetUpsert(true))
	}

	res, err := s.msgs.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("bulk upsert messages: %w", err)
	}
	return int(res.UpsertedCount), nil
}

// AttachMedia records a locally cached media reference on an existing message.
func (s *Store) AttachMedia(ctx context.Context, conversationID, messageID int64, ref string) error {
	res, err := s.msgs.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "message_id": messageID},
		bson.M{"$set": bson.M{"media_ref": ref}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindConversations returns conversations ordered by name, case-insensitively.
func (s *Store) FindConversations(ctx context.Context, f domain.ConversationFilter) ([]domain.Conversation, error) {
	filter := bson.M{}
	if q := strings.TrimSpace(f.Query); q != "" {
		re := substring(q)
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"username": re},
		}
	}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "conversation_id", Value: 1}}).
		SetCollation(&options.Collation{Locale: "en", Strength: 2})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := s.convs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var convs []domain.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// FindMessages returns the messages of a conversation matching f, ordered by message id.
func (s *Store) FindMessages(ctx context.Context, conversationID int64, f domain.MessageFilter) ([]domain.Message, error) {
	filter := bson.M{"conversation_id": conversationID}

	ts := bson.M{}
	if f.Since > 0 {
		ts["$gte"] = f.Since
	}
	if f.Until > 0 {
		ts["$lt"] = f.Until
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}
	if f.Text != "" {
		filter["text"] = substring(f.Text)
	}
	if f.SenderID != 0 {
		filter["sender_id"] = f.SenderID
	}

	order := 1
	if f.Reverse {
		order = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "message_id", Value: order}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := s.msgs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// substring matches s literally anywhere in the field, ignoring case.
func substring(s string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}
