package scheduler

import "time"

// Entry is one agent's position in a turn ranking.
type Entry struct {
	CharacterID  string `bson:"character_id" json:"character_id"`
	Priority     int    `bson:"priority" json:"priority"`
	Reason       string `bson:"reason" json:"reason"`
	WantsToSpeak bool   `bson:"wants_to_speak" json:"wants_to_speak"`
}

// Ranking is one scheduling invocation's ordered output, persisted so the
// next invocation can bias for continuity.
type Ranking struct {
	Entries   []Entry   `bson:"entries" json:"entries"`
	Source    string    `bson:"source" json:"source"` // "reasoning" or "heuristic"
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Top returns the character id ranked first, or empty.
func (r *Ranking) Top() string {
	if r == nil || len(r.Entries) == 0 {
		return ""
	}
	return r.Entries[0].CharacterID
}

// AgentState is the per-agent input to a scheduling invocation.
type AgentState struct {
	CharacterID  string
	Name         string
	LastSpokeAt  *time.Time
	KnownFacts   int
	WantsToSpeak bool
	// SilentRounds counts consecutive rankings without this agent speaking;
	// the fairness floor promotes anyone past the starvation bound.
	SilentRounds int
	// JoinOrder is the stable tie-break.
	JoinOrder int
}
