package knowledge

import "time"

// ContradictionType classifies what kind of inconsistency was detected.
// Knowledge and alibi inconsistencies fold into the statement type.
type ContradictionType string

const (
	ContradictionStatement ContradictionType = "statement"
	ContradictionTimeline  ContradictionType = "timeline"
	ContradictionAction    ContradictionType = "action"
)

// ContradictionStatus is the lifecycle state of a contradiction. Transitions
// only move forward: unresolved may become explained or dismissed, and
// neither of those ever reverts.
type ContradictionStatus string

const (
	ContradictionUnresolved ContradictionStatus = "unresolved"
	ContradictionExplained  ContradictionStatus = "explained"
	ContradictionDismissed  ContradictionStatus = "dismissed"
)

// Party is one character implicated in a contradiction, with the statement
// or action excerpt that implicates them.
type Party struct {
	CharacterID string `bson:"character_id" json:"character_id"`
	Excerpt     string `bson:"excerpt" json:"excerpt"`
}

// Contradiction is a detected inconsistency across testimony, the timeline,
// or observed actions. Severity is scaled [0,100].
type Contradiction struct {
	ID           string              `bson:"id" json:"id"`
	Type         ContradictionType   `bson:"type" json:"type"`
	Description  string              `bson:"description" json:"description"`
	Parties      []Party             `bson:"parties" json:"parties"`
	Severity     int                 `bson:"severity" json:"severity"`
	Status       ContradictionStatus `bson:"status" json:"status"`
	Reasoning    string              `bson:"reasoning,omitempty" json:"reasoning,omitempty"`
	DiscoveredAt time.Time           `bson:"discovered_at" json:"discovered_at"`
}

// CanTransition reports whether the status change is a legal forward move.
func (c *Contradiction) CanTransition(to ContradictionStatus) bool {
	if c.Status == to {
		return false
	}
	return c.Status == ContradictionUnresolved
}
