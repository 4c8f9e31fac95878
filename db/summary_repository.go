package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deduction/scheduler"
	"deduction/summary"
)

// Digest returns the game's case digest, or a fresh zero-version digest
// when none exists yet.
func (s *Store) Digest(ctx context.Context, gameID string) (*summary.Digest, error) {
	var d summary.Digest
	err := s.collection("summaries").FindOne(ctx, bson.M{"game_id": gameID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &summary.Digest{GameID: gameID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// AcquireLock claims the digest lock iff it is free or stale. The filter
// matches only a lockable document; when the digest does not exist yet the
// upsert creates it, and when someone else holds a fresh lock the upsert
// collides with the unique game_id index, which reads as "held".
func (s *Store) AcquireLock(ctx context.Context, gameID, holderID string, staleBefore time.Time) (bool, error) {
	result, err := s.collection("summaries").UpdateOne(ctx,
		bson.M{
			"game_id": gameID,
			"$or": []bson.M{
				{"lock": bson.M{"$exists": false}},
				{"lock": nil},
				{"lock.acquired_at": bson.M{"$lt": staleBefore}},
			},
		},
		bson.M{
			"$set": bson.M{"lock": summary.Lock{HolderID: holderID, AcquiredAt: time.Now()}},
			"$setOnInsert": bson.M{
				"version":            0,
				"last_message_index": 0,
			},
		},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1 || result.UpsertedCount == 1, nil
}

// ReleaseLock frees the digest lock if this holder still owns it.
func (s *Store) ReleaseLock(ctx context.Context, gameID, holderID string) error {
	_, err := s.collection("summaries").UpdateOne(ctx,
		bson.M{"game_id": gameID, "lock.holder_id": holderID},
		bson.M{"$set": bson.M{"lock": nil}})
	return err
}

// SaveDigest persists the digest iff the stored version still equals
// expectVersion, so two racing runs cannot both land.
func (s *Store) SaveDigest(ctx context.Context, d *summary.Digest, expectVersion int) (bool, error) {
	result, err := s.collection("summaries").UpdateOne(ctx,
		bson.M{"game_id": d.GameID, "version": expectVersion},
		bson.M{"$set": bson.M{
			"version":             d.Version,
			"last_message_index":  d.LastMessageIndex,
			"facts":               d.Facts,
			"questions":           d.Questions,
			"topics":              d.Topics,
			"rp_log":              d.RPLog,
			"contradiction_notes": d.ContradictionNotes,
			"updated_at":          d.UpdatedAt,
		}})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// rankingDocument wraps a persisted turn ranking.
type rankingDocument struct {
	GameID  string            `bson:"game_id"`
	Ranking scheduler.Ranking `bson:"ranking"`
}

// LastRanking returns the previous scheduling invocation's ranking, or nil
// when none exists.
func (s *Store) LastRanking(ctx context.Context, gameID string) (*scheduler.Ranking, error) {
	var doc rankingDocument
	err := s.collection("rankings").FindOne(ctx, bson.M{"game_id": gameID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc.Ranking, nil
}

// SaveRanking stores the ranking for the next invocation's continuity bias.
func (s *Store) SaveRanking(ctx context.Context, gameID string, r scheduler.Ranking) error {
	_, err := s.collection("rankings").ReplaceOne(ctx,
		bson.M{"game_id": gameID},
		rankingDocument{GameID: gameID, Ranking: r},
		options.Replace().SetUpsert(true))
	return err
}
