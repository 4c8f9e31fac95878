package summary

import "time"

// FactCategory tags an established fact in the case digest.
type FactCategory string

const (
	CategoryTimeline     FactCategory = "timeline"
	CategoryAlibi        FactCategory = "alibi"
	CategoryEvidence     FactCategory = "evidence"
	CategoryRelationship FactCategory = "relationship"
	CategoryMotive       FactCategory = "motive"
	CategoryOther        FactCategory = "other"
)

// EstablishedFact is one accreted entry in the shared digest. Facts are
// never removed, only appended.
type EstablishedFact struct {
	Content  string       `bson:"content" json:"content"`
	Category FactCategory `bson:"category" json:"category"`
	AddedAt  time.Time    `bson:"added_at" json:"added_at"`
	AddedInV int          `bson:"added_in_v" json:"added_in_v"`
}

// QuestionStatus tracks whether an open question has been answered.
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionResolved QuestionStatus = "resolved"
)

// Question is an open or resolved question in the digest. Open questions
// migrate to resolved when answered; they never disappear.
type Question struct {
	Content string         `bson:"content" json:"content"`
	Status  QuestionStatus `bson:"status" json:"status"`
	Answer  string         `bson:"answer,omitempty" json:"answer,omitempty"`
}

// TopicStatus flips to saturated once a topic has been mentioned enough
// times that further discussion adds little.
type TopicStatus string

const (
	TopicActive    TopicStatus = "active"
	TopicSaturated TopicStatus = "saturated"
)

// Topic is a mention counter for one discussion subject.
type Topic struct {
	Name     string      `bson:"name" json:"name"`
	Mentions int         `bson:"mentions" json:"mentions"`
	Status   TopicStatus `bson:"status" json:"status"`
}

// RPAction is one roleplay or physical action noted by the summarizer.
type RPAction struct {
	CharacterID string    `bson:"character_id" json:"character_id"`
	Description string    `bson:"description" json:"description"`
	At          time.Time `bson:"at" json:"at"`
}

// Lock is the summarizer's mutual-exclusion record. A lock older than the
// staleness window counts as abandoned and may be re-acquired.
type Lock struct {
	HolderID   string    `bson:"holder_id" json:"holder_id"`
	AcquiredAt time.Time `bson:"acquired_at" json:"acquired_at"`
}

// Digest is the single shared case summary for one game. Version only
// increments and the message cursor only advances.
type Digest struct {
	GameID             string            `bson:"game_id" json:"game_id"`
	Version            int               `bson:"version" json:"version"`
	LastMessageIndex   int               `bson:"last_message_index" json:"last_message_index"`
	Facts              []EstablishedFact `bson:"facts" json:"facts"`
	Questions          []Question        `bson:"questions" json:"questions"`
	Topics             []Topic           `bson:"topics" json:"topics"`
	RPLog              []RPAction        `bson:"rp_log" json:"rp_log"`
	ContradictionNotes []string          `bson:"contradiction_notes" json:"contradiction_notes"`
	Lock               *Lock             `bson:"lock,omitempty" json:"lock,omitempty"`
	UpdatedAt          time.Time         `bson:"updated_at" json:"updated_at"`
}
