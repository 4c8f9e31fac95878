package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	dbmodels "deduction/db/models"
	"deduction/models"
	"deduction/phase"
)

// CreateGame inserts a new game and returns its ID.
func (s *Store) CreateGame(ctx context.Context, game *dbmodels.GameDocument) (string, error) {
	game.CreatedAt = time.Now()
	game.UpdatedAt = time.Now()

	result, err := s.collection("games").InsertOne(ctx, game)
	if err != nil {
		return "", err
	}
	return result.InsertedID.(primitive.ObjectID).Hex(), nil
}

// Game fetches a game by ID.
func (s *Store) Game(ctx context.Context, gameID string) (*dbmodels.GameDocument, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return nil, ErrNotFound
	}

	var game dbmodels.GameDocument
	err = s.collection("games").FindOne(ctx, bson.M{"_id": objID}).Decode(&game)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// Scenario fetches the scenario content for a game.
func (s *Store) Scenario(ctx context.Context, scenarioID primitive.ObjectID) (*models.Scenario, error) {
	var sc models.Scenario
	err := s.collection("scenarios").FindOne(ctx, bson.M{"_id": scenarioID}).Decode(&sc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// SwapPhase applies a phase transition only if the stored phase still equals
// from, resetting the capability flags and clearing the AI-acting flag in
// the same write. This is the serialization point for transitions: a
// duplicate concurrent request finds the phase already moved and modifies
// nothing.
func (s *Store) SwapPhase(ctx context.Context, gameID string, from, to phase.Phase, deadline *time.Time, caps phase.Capabilities) (bool, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return false, ErrNotFound
	}

	result, err := s.collection("games").UpdateOne(ctx,
		bson.M{"_id": objID, "phase": string(from)},
		bson.M{"$set": bson.M{
			"phase":          string(to),
			"phase_deadline": deadline,
			"humans_may_act": caps.HumansMayAct,
			"ai_may_trigger": caps.AIMayTrigger,
			"ai_acting":      false,
			"updated_at":     time.Now(),
		}})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// MarkAIReady flags every AI participant ready.
func (s *Store) MarkAIReady(ctx context.Context, gameID string) error {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return ErrNotFound
	}

	_, err = s.collection("games").UpdateOne(ctx,
		bson.M{"_id": objID},
		bson.M{"$set": bson.M{"players.$[p].ready": true}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"p.is_ai": true}},
		}))
	return err
}

// ResetExplorationBudgets refills every player's exploration action budget.
func (s *Store) ResetExplorationBudgets(ctx context.Context, gameID string, budget int) error {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return ErrNotFound
	}

	_, err = s.collection("games").UpdateOne(ctx,
		bson.M{"_id": objID},
		bson.M{"$set": bson.M{"players.$[].exploration_budget": budget}})
	return err
}

// SpendExplorationAction decrements a player's budget, applying only if the
// player still has actions left. Returns false when the budget is exhausted.
func (s *Store) SpendExplorationAction(ctx context.Context, gameID, playerID string) (bool, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return false, ErrNotFound
	}

	result, err := s.collection("games").UpdateOne(ctx,
		bson.M{"_id": objID, "players": bson.M{"$elemMatch": bson.M{
			"player_id":          playerID,
			"exploration_budget": bson.M{"$gt": 0},
		}}},
		bson.M{"$inc": bson.M{"players.$.exploration_budget": -1}})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// SetAIActing claims or releases the game's AI mutual-exclusion flag. The
// claim applies only if no AI currently acts, so concurrent triggers cannot
// double-fire.
func (s *Store) SetAIActing(ctx context.Context, gameID string, acting bool) (bool, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return false, ErrNotFound
	}

	filter := bson.M{"_id": objID}
	if acting {
		filter["ai_acting"] = false
	}
	result, err := s.collection("games").UpdateOne(ctx,
		filter,
		bson.M{"$set": bson.M{"ai_acting": acting, "updated_at": time.Now()}})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// ActiveGames lists the ids of games that have not ended, for the
// heartbeat loop.
func (s *Store) ActiveGames(ctx context.Context) ([]string, error) {
	cursor, err := s.collection("games").Find(ctx,
		bson.M{"phase": bson.M{"$ne": "ended"}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var games []dbmodels.GameDocument
	if err := cursor.All(ctx, &games); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID.Hex())
	}
	return ids, nil
}

// NextMessageIndex allocates the next per-game monotone message index.
func (s *Store) NextMessageIndex(ctx context.Context, gameID string) (int, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return 0, ErrNotFound
	}

	var game dbmodels.GameDocument
	err = s.collection("games").FindOneAndUpdate(ctx,
		bson.M{"_id": objID},
		bson.M{"$inc": bson.M{"message_seq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&game)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return game.MessageSeq, nil
}
