package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Scenario is the full scenario document from MongoDB. It carries the ground
// truth of the case; generation of scenarios happens upstream of this service.
type Scenario struct {
	ID        primitive.ObjectID `bson:"_id"`
	Content   ScenarioContent    `bson:"scenario"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

// ScenarioContent contains the main scenario content.
type ScenarioContent struct {
	Title      string          `bson:"title"`
	Synopsis   string          `bson:"synopsis"`
	Characters []Character     `bson:"characters"`
	Cards      []Card          `bson:"cards"`
	Timeline   []TimelineEvent `bson:"timeline"`
	// Truth is the hidden resolution of the case. Never surfaced to agents
	// except through the cards they legitimately obtain.
	Truth string `bson:"truth"`
}

// Character represents a character in the scenario.
type Character struct {
	ID                 string   `bson:"id"`
	Name               string   `bson:"name"`
	PersonalityProfile string   `bson:"personality_profile"`
	PublicBackground   string   `bson:"public_background"`
	PrivateKnowledge   string   `bson:"private_knowledge"`
	Alibi              string   `bson:"alibi"`
	HoldsCardIDs       []string `bson:"holds_card_ids"`
	IsCulprit          bool     `bson:"is_culprit"`
}

// Card is a piece of evidence or information that a character holds and may
// reveal during exploration.
type Card struct {
	ID          string `bson:"id"`
	Title       string `bson:"title"`
	Description string `bson:"description"`
	HolderID    string `bson:"holder_id"`
	// Critical marks cards the scenario generator considers essential to
	// solving the case.
	Critical bool `bson:"critical"`
}

// TimelineEvent is one entry in the scenario's objective timeline.
type TimelineEvent struct {
	At           string   `bson:"at"`
	Description  string   `bson:"description"`
	CharacterIDs []string `bson:"character_ids"`
}

// CharacterByID finds a character in the scenario content.
func (s *ScenarioContent) CharacterByID(id string) *Character {
	for i := range s.Characters {
		if s.Characters[i].ID == id {
			return &s.Characters[i]
		}
	}
	return nil
}

// CardByID finds a card in the scenario content.
func (s *ScenarioContent) CardByID(id string) *Card {
	for i := range s.Cards {
		if s.Cards[i].ID == id {
			return &s.Cards[i]
		}
	}
	return nil
}
