package phase

import (
	"time"

	"deduction/config"
)

// Phase is one stage of the game's fixed sequence. Scenario generation
// happens before setup and outside this service.
type Phase string

const (
	Setup        Phase = "setup"
	Lobby        Phase = "lobby"
	Prologue     Phase = "prologue"
	Exploration1 Phase = "exploration_1"
	Discussion1  Phase = "discussion_1"
	Exploration2 Phase = "exploration_2"
	Discussion2  Phase = "discussion_2"
	Voting       Phase = "voting"
	Ending       Phase = "ending"
	Ended        Phase = "ended"
)

// sequence is the only legal order of phases. No skipping: every transition
// moves to the immediate successor, whatever its cause.
var sequence = []Phase{
	Setup, Lobby, Prologue,
	Exploration1, Discussion1, Exploration2, Discussion2,
	Voting, Ending, Ended,
}

// Next returns the successor phase, or empty when p is terminal or unknown.
func (p Phase) Next() Phase {
	for i, s := range sequence {
		if s == p && i+1 < len(sequence) {
			return sequence[i+1]
		}
	}
	return ""
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, s := range sequence {
		if s == p {
			return true
		}
	}
	return false
}

// Exploration reports whether p is one of the exploration phases.
func (p Phase) Exploration() bool {
	return p == Exploration1 || p == Exploration2
}

// Discussion reports whether p is one of the discussion phases.
func (p Phase) Discussion() bool {
	return p == Discussion1 || p == Discussion2
}

// Capabilities are the two flags every phase resets on entry.
type Capabilities struct {
	HumansMayAct bool
	AIMayTrigger bool
}

// Capabilities returns the capability flags active while p is the current
// phase. AI self-triggering is limited to the prologue (opening lines) and
// the discussion phases; votes and exploration turns are driven by commands.
func (p Phase) Capabilities() Capabilities {
	switch {
	case p == Lobby:
		return Capabilities{HumansMayAct: true}
	case p == Prologue:
		return Capabilities{AIMayTrigger: true}
	case p.Exploration():
		return Capabilities{HumansMayAct: true}
	case p.Discussion():
		return Capabilities{HumansMayAct: true, AIMayTrigger: true}
	case p == Voting:
		return Capabilities{HumansMayAct: true}
	default:
		return Capabilities{}
	}
}

// Duration returns how long p runs before a timer transition, or zero for
// untimed phases.
func (p Phase) Duration(cfg config.PhaseConfig) time.Duration {
	switch {
	case p == Prologue:
		return cfg.Prologue
	case p.Exploration():
		return cfg.Exploration
	case p.Discussion():
		return cfg.Discussion
	case p == Voting:
		return cfg.Voting
	case p == Ending:
		return cfg.Ending
	default:
		return 0
	}
}

// Cause is what triggered a transition, in evaluation priority order.
type Cause string

const (
	CauseManual       Cause = "manual"
	CauseConditionMet Cause = "condition_met"
	CauseTimer        Cause = "timer"
)
