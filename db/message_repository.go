package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	dbmodels "deduction/db/models"
)

// AppendMessage saves a chat message. Empty messages are skipped; transient
// failures are retried with backoff.
func (s *Store) AppendMessage(ctx context.Context, msg *dbmodels.MessageDocument) error {
	if strings.TrimSpace(msg.Content) == "" {
		s.logger.Printf("[SAVE_MESSAGE_SKIP] Skipping empty message for game %s at index %d", msg.GameID.Hex(), msg.Index)
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		_, err := s.collection("messages").InsertOne(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(time.Millisecond * 100 * time.Duration(i+1))
	}
	return lastErr
}

// RecentMessages returns the last limit messages in chronological order.
func (s *Store) RecentMessages(ctx context.Context, gameID string, limit int) ([]dbmodels.MessageDocument, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "index", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection("messages").Find(ctx, bson.M{"game_id": objID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []dbmodels.MessageDocument
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	// Flip newest-first into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MessagesAfter returns up to limit messages with index strictly greater
// than the cursor, in index order.
func (s *Store) MessagesAfter(ctx context.Context, gameID string, index, limit int) ([]dbmodels.MessageDocument, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "index", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection("messages").Find(ctx,
		bson.M{"game_id": objID, "index": bson.M{"$gt": index}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []dbmodels.MessageDocument
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountMessagesAfter counts messages past the cursor.
func (s *Store) CountMessagesAfter(ctx context.Context, gameID string, index int) (int, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return 0, ErrNotFound
	}

	n, err := s.collection("messages").CountDocuments(ctx,
		bson.M{"game_id": objID, "index": bson.M{"$gt": index}})
	return int(n), err
}

// LastMessageTime returns when the most recent message landed, or nil when
// the game has no messages.
func (s *Store) LastMessageTime(ctx context.Context, gameID string) (*time.Time, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "index", Value: -1}})
	var msg dbmodels.MessageDocument
	err = s.collection("messages").FindOne(ctx, bson.M{"game_id": objID}, opts).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg.Timestamp, nil
}

// AppendAction writes to the append-only action log.
func (s *Store) AppendAction(ctx context.Context, action *dbmodels.ActionDocument) error {
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	_, err := s.collection("actions").InsertOne(ctx, action)
	return err
}
