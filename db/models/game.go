package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deduction/knowledge"
)

// GameDocument is the root state record for one game instance.
type GameDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ScenarioID primitive.ObjectID `bson:"scenario_id"`
	HostID     string             `bson:"host_id"`
	Players    []PlayerRef        `bson:"players"`

	Phase         string     `bson:"phase"`
	PhaseDeadline *time.Time `bson:"phase_deadline,omitempty"`
	// HumansMayAct and AIMayTrigger are the capability flags reset on every
	// phase transition. AIActing is the mutual-exclusion flag set while an
	// AI turn is in flight.
	HumansMayAct bool `bson:"humans_may_act"`
	AIMayTrigger bool `bson:"ai_may_trigger"`
	AIActing     bool `bson:"ai_acting"`

	// MessageSeq is the per-game monotone message index allocator.
	MessageSeq int `bson:"message_seq"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// PlayerRef binds a participant to a scenario character.
type PlayerRef struct {
	PlayerID    string `bson:"player_id"`
	CharacterID string `bson:"character_id"`
	IsAI        bool   `bson:"is_ai"`
	Ready       bool   `bson:"ready"`
	// ExplorationBudget counts remaining actions in the current
	// exploration phase.
	ExplorationBudget int `bson:"exploration_budget"`
}

// AgentDocument is one AI participant's persistent record, embedding its
// private belief state.
type AgentDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	GameID        primitive.ObjectID `bson:"game_id"`
	CharacterID   string             `bson:"character_id"`
	CharacterName string             `bson:"character_name"`
	Personality   string             `bson:"personality"`
	Knowledge     *knowledge.Base    `bson:"knowledge"`

	LastSpokeAt  *time.Time `bson:"last_spoke_at,omitempty"`
	WantsToSpeak bool       `bson:"wants_to_speak"`
	// SilentRounds counts consecutive rankings in which this agent did not
	// end up speaking; the scheduler's fairness floor reads it.
	SilentRounds int `bson:"silent_rounds"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MessageDocument is one chat message in a game, indexed by a per-game
// monotone sequence number.
type MessageDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	GameID      primitive.ObjectID `bson:"game_id"`
	CharacterID string             `bson:"character_id"`
	PlayerID    string             `bson:"player_id,omitempty"`
	Role        string             `bson:"role"` // "human" or "ai"
	Content     string             `bson:"content"`
	Index       int                `bson:"index"`
	Timestamp   time.Time          `bson:"timestamp"`
}

// ActionDocument is one entry in the append-only action log consumed by the
// realtime push layer.
type ActionDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	GameID    primitive.ObjectID `bson:"game_id"`
	Type      string             `bson:"type"` // vote, exploration, reveal, phase, dialogue
	ActorID   string             `bson:"actor_id"`
	TargetID  string             `bson:"target_id,omitempty"`
	CardID    string             `bson:"card_id,omitempty"`
	Note      string             `bson:"note,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`
}
