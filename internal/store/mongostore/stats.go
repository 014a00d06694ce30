package mongostore

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/matheus3301/chatfetch/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Stats aggregates cached data for one conversation, or for all of them when
// conversationID is 0.
func (s *Store) Stats(ctx context.Context, conversationID int64) (*domain.Stats, error) {
	scope := bson.M{}
	convScope := bson.M{}
	if conversationID != 0 {
		scope = bson.M{"conversation_id": conversationID}
		convScope = scope
	}

	st := &domain.Stats{ConversationID: conversationID}

	n, err := s.convs.CountDocuments(ctx, convScope)
	if err != nil {
		return nil, err
	}
	if conversationID != 0 && n == 0 {
		return nil, domain.ErrNotFound
	}
	st.Conversations = n

	// Sender 0 marks messages without a known author.
	cur, err := s.msgs.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: scope}},
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"messages": bson.M{"$sum": 1},
			"senders":  bson.M{"$addToSet": "$sender_id"},
		}}},
		{{Key: "$project", Value: bson.M{
			"messages": 1,
			"senders":  bson.M{"$size": bson.M{"$setDifference": bson.A{"$senders", bson.A{0}}}},
		}}},
	})
	if err != nil {
		return nil, err
	}
	var counts []struct {
		Messages int64 `bson:"messages"`
		Senders  int64 `bson:"senders"`
	}
	if err := cur.All(ctx, &counts); err != nil {
		return nil, err
	}
	if len(counts) > 0 {
		st.Messages, st.Senders = counts[0].Messages, counts[0].Senders
	}

	var last domain.Message
	err = s.msgs.FindOne(ctx, scope,
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "message_id", Value: -1}}),
	).Decode(&last)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return nil, err
	default:
		st.LastMessage = &last
	}

	if conversationID == 0 {
		activity, err := s.activity(ctx)
		if err != nil {
			return nil, err
		}
		st.Activity = activity
	}
	return st, nil
}

// activity lists every cached conversation with its message volume, busiest first.
func (s *Store) activity(ctx context.Context) ([]domain.Activity, error) {
	cur, err := s.msgs.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":             "$conversation_id",
			"messages":        bson.M{"$sum": 1},
			"last_message_at": bson.M{"$max": "$timestamp"},
		}}},
	})
	if err != nil {
		return nil, err
	}
	var grouped []domain.Activity
	if err := cur.All(ctx, &grouped); err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Activity, len(grouped))
	for _, a := range grouped {
		byID[a.ConversationID] = a
	}

	convs, err := s.FindConversations(ctx, domain.ConversationFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Activity, 0, len(convs))
	for _, c := range convs {
		a := byID[c.ID]
		a.ConversationID, a.Name = c.ID, c.Name
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(a, b domain.Activity) int {
		if c := cmp.Compare(b.Messages, a.Messages); c != 0 {
			return c
		}
		return cmp.Compare(b.LastMessageAt, a.LastMessageAt)
	})
	return out, nil
}
