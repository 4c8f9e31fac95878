package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	dbmodels "deduction/db/models"
	"deduction/knowledge"
)

// CreateAgent inserts a new agent with an empty belief state.
func (s *Store) CreateAgent(ctx context.Context, agent *dbmodels.AgentDocument) error {
	if agent.Knowledge == nil {
		agent.Knowledge = knowledge.NewBase()
	}
	agent.CreatedAt = time.Now()
	agent.UpdatedAt = time.Now()

	_, err := s.collection("agents").InsertOne(ctx, agent)
	return err
}

// AgentsByGame returns every AI agent in a game.
func (s *Store) AgentsByGame(ctx context.Context, gameID string) ([]dbmodels.AgentDocument, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return nil, ErrNotFound
	}

	cursor, err := s.collection("agents").Find(ctx, bson.M{"game_id": objID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var agents []dbmodels.AgentDocument
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// AgentByCharacter returns one agent by game and character.
func (s *Store) AgentByCharacter(ctx context.Context, gameID, characterID string) (*dbmodels.AgentDocument, error) {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return nil, ErrNotFound
	}

	var agent dbmodels.AgentDocument
	err = s.collection("agents").FindOne(ctx,
		bson.M{"game_id": objID, "character_id": characterID}).Decode(&agent)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// Base returns one agent's belief state, satisfying knowledge.Repository.
func (s *Store) Base(ctx context.Context, gameID, characterID string) (*knowledge.Base, error) {
	agent, err := s.AgentByCharacter(ctx, gameID, characterID)
	if errors.Is(err, ErrNotFound) {
		return nil, knowledge.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if agent.Knowledge == nil {
		return knowledge.NewBase(), nil
	}
	return agent.Knowledge, nil
}

func (s *Store) updateAgent(ctx context.Context, gameID, characterID string, update bson.M) error {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return ErrNotFound
	}
	_, err = s.collection("agents").UpdateOne(ctx,
		bson.M{"game_id": objID, "character_id": characterID},
		update)
	return err
}

// SetCard writes one card-knowledge record with a field-path partial update.
func (s *Store) SetCard(ctx context.Context, gameID, characterID string, ck knowledge.CardKnowledge) error {
	return s.updateAgent(ctx, gameID, characterID, bson.M{"$set": bson.M{
		"knowledge.cards." + ck.CardID: ck,
		"updated_at":                   time.Now(),
	}})
}

// PushFact appends to the agent's fact list.
func (s *Store) PushFact(ctx context.Context, gameID, characterID string, f knowledge.Fact) error {
	return s.updateAgent(ctx, gameID, characterID, bson.M{
		"$push": bson.M{"knowledge.facts": f},
		"$set":  bson.M{"updated_at": time.Now()},
	})
}

// SetRelationship writes one relationship record. Same-agent writes are
// last-write-wins, which is acceptable under the belief state's best-effort
// semantics.
func (s *Store) SetRelationship(ctx context.Context, gameID, characterID string, rel knowledge.Relationship) error {
	return s.updateAgent(ctx, gameID, characterID, bson.M{"$set": bson.M{
		"knowledge.relationships." + rel.TargetID: rel,
		"updated_at": time.Now(),
	}})
}

// SaveContradictions replaces the agent's contradiction list, used after
// detection and decay passes.
func (s *Store) SaveContradictions(ctx context.Context, gameID, characterID string, contras []knowledge.Contradiction) error {
	return s.updateAgent(ctx, gameID, characterID, bson.M{"$set": bson.M{
		"knowledge.contradictions": contras,
		"updated_at":               time.Now(),
	}})
}

// MarkSpoke records that the agent just spoke, resetting its starvation
// counter and want-to-speak flag.
func (s *Store) MarkSpoke(ctx context.Context, gameID, characterID string, at time.Time) error {
	return s.updateAgent(ctx, gameID, characterID, bson.M{"$set": bson.M{
		"last_spoke_at":  at,
		"silent_rounds":  0,
		"wants_to_speak": false,
		"updated_at":     time.Now(),
	}})
}

// BumpSilentRounds increments the starvation counter for every agent in the
// game except the one that spoke.
func (s *Store) BumpSilentRounds(ctx context.Context, gameID, spokeCharacterID string) error {
	objID, err := primitive.ObjectIDFromHex(gameID)
	if err != nil {
		return ErrNotFound
	}
	_, err = s.collection("agents").UpdateMany(ctx,
		bson.M{"game_id": objID, "character_id": bson.M{"$ne": spokeCharacterID}},
		bson.M{"$inc": bson.M{"silent_rounds": 1}})
	return err
}

// SetWantsToSpeak records whether the agent asked for the floor.
func (s *Store) SetWantsToSpeak(ctx context.Context, gameID, characterID string, wants bool) error {
	return s.updateAgent(ctx, gameID, characterID, bson.M{"$set": bson.M{
		"wants_to_speak": wants,
		"updated_at":     time.Now(),
	}})
}
