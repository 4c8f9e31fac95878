package knowledge

import "time"

// CardStatus describes how well an agent knows a card.
type CardStatus string

const (
	CardUnknown    CardStatus = "unknown"
	CardSeenHolder CardStatus = "seen_holder"
	CardKnown      CardStatus = "known"
	CardDeduced    CardStatus = "deduced"
)

// Source describes where a piece of knowledge came from. Direct knowledge
// (a card reveal witnessed first-hand) always overrides prior state; every
// other source may only upgrade confidence.
type Source string

const (
	SourceDirect    Source = "direct"
	SourceTestimony Source = "testimony"
	SourceDeduction Source = "deduction"
	SourceRumor     Source = "rumor"
)

// CardKnowledge is an agent's belief about a single card.
type CardKnowledge struct {
	CardID       string     `bson:"card_id" json:"card_id"`
	Status       CardStatus `bson:"status" json:"status"`
	HolderID     string     `bson:"holder_id,omitempty" json:"holder_id,omitempty"`
	ContentGuess string     `bson:"content_guess,omitempty" json:"content_guess,omitempty"`
	Confidence   int        `bson:"confidence" json:"confidence"`
	Source       Source     `bson:"source" json:"source"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// Fact is one entry in an agent's append-only fact list.
type Fact struct {
	ID         string    `bson:"id" json:"id"`
	Content    string    `bson:"content" json:"content"`
	Source     Source    `bson:"source" json:"source"`
	Confidence int       `bson:"confidence" json:"confidence"`
	Tags       []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// TimelineEntry is an agent's subjective reconstruction of one event.
type TimelineEntry struct {
	At      string `bson:"at" json:"at"`
	Content string `bson:"content" json:"content"`
}

// Tone is the emotional register an agent holds toward another character,
// recomputed from trust and suspicion after every relationship update.
type Tone string

const (
	ToneNeutral  Tone = "neutral"
	ToneWarm     Tone = "warm"
	ToneCold     Tone = "cold"
	ToneTense    Tone = "tense"
	ToneHostile  Tone = "hostile"
	ToneTrusting Tone = "trusting"
)

// Interaction is one entry in a relationship's append-only history.
type Interaction struct {
	Type           string    `bson:"type" json:"type"`
	Note           string    `bson:"note,omitempty" json:"note,omitempty"`
	TrustDelta     int       `bson:"trust_delta" json:"trust_delta"`
	SuspicionDelta int       `bson:"suspicion_delta" json:"suspicion_delta"`
	At             time.Time `bson:"at" json:"at"`
}

// Relationship tracks one agent's stance toward one other character.
// Trust and suspicion are always clamped to [0,100].
type Relationship struct {
	TargetID  string        `bson:"target_id" json:"target_id"`
	Trust     int           `bson:"trust" json:"trust"`
	Suspicion int           `bson:"suspicion" json:"suspicion"`
	Tone      Tone          `bson:"tone" json:"tone"`
	History   []Interaction `bson:"history" json:"history"`
}

// Base is one agent's private belief state.
type Base struct {
	Cards          map[string]CardKnowledge `bson:"cards" json:"cards"`
	Facts          []Fact                   `bson:"facts" json:"facts"`
	Contradictions []Contradiction          `bson:"contradictions" json:"contradictions"`
	Timeline       []TimelineEntry          `bson:"timeline" json:"timeline"`
	Relationships  map[string]Relationship  `bson:"relationships" json:"relationships"`
	// Narrative is a bounded free-text account the agent keeps of the case.
	Narrative string `bson:"narrative" json:"narrative"`
}

// NewBase returns an empty belief state.
func NewBase() *Base {
	return &Base{
		Cards:         make(map[string]CardKnowledge),
		Relationships: make(map[string]Relationship),
	}
}

// UnresolvedContradictions returns the agent's contradictions still awaiting
// an explanation, oldest first.
func (b *Base) UnresolvedContradictions() []Contradiction {
	var out []Contradiction
	for _, c := range b.Contradictions {
		if c.Status == ContradictionUnresolved {
			out = append(out, c)
		}
	}
	return out
}
