package phase

import (
	"context"
	"errors"
	"log"
	"time"

	"deduction/config"
	dbmodels "deduction/db/models"
)

// ErrNotAuthorized is returned when a manual transition comes from anyone
// but the host. Authorization failures gate game-breaking actions and so do
// propagate, unlike concurrency conflicts.
var ErrNotAuthorized = errors.New("phase: only the host may force a transition")

// Repository is the persistence surface the machine needs.
type Repository interface {
	Game(ctx context.Context, gameID string) (*dbmodels.GameDocument, error)
	// SwapPhase applies the transition only if the stored phase still equals
	// from; it also resets capability flags and clears the AI-acting flag.
	// Returns false when the stored phase no longer matches.
	SwapPhase(ctx context.Context, gameID string, from, to Phase, deadline *time.Time, caps Capabilities) (bool, error)
	// MarkAIReady flags every AI participant ready (phase-entry setup).
	MarkAIReady(ctx context.Context, gameID string) error
	// ResetExplorationBudgets refills every player's action budget on entry
	// into an exploration phase.
	ResetExplorationBudgets(ctx context.Context, gameID string, budget int) error
}

// Transition records one applied phase change.
type Transition struct {
	From     Phase
	To       Phase
	Cause    Cause
	Deadline *time.Time
}

// Machine advances a game through the phase sequence. Transitions are
// serialized per game by the repository's conditional write: under duplicate
// concurrent requests exactly one caller observes a state change.
type Machine struct {
	repo    Repository
	cfg     config.PhaseConfig
	explore config.ExplorationConfig
	logger  *log.Logger
	now     func() time.Time
}

// NewMachine builds a phase machine.
func NewMachine(repo Repository, cfg config.PhaseConfig, explore config.ExplorationConfig, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.New(log.Writer(), "[PHASE] ", log.LstdFlags)
	}
	return &Machine{repo: repo, cfg: cfg, explore: explore, logger: logger, now: time.Now}
}

// Advance moves the game to the next phase. It returns (nil, nil) when no
// transition happened for a benign reason: the game already ended, or a
// concurrent duplicate request won the conditional write. Both are "game
// over / already done" signals, not faults.
func (m *Machine) Advance(ctx context.Context, gameID string, cause Cause, requestedBy string) (*Transition, error) {
	game, err := m.repo.Game(ctx, gameID)
	if err != nil {
		return nil, err
	}

	current := Phase(game.Phase)
	if current == Ended {
		return nil, nil
	}
	if cause == CauseManual && requestedBy != game.HostID {
		return nil, ErrNotAuthorized
	}

	next := current.Next()
	if next == "" {
		m.logger.Printf("[BAD_PHASE] game %s has unknown phase %q", gameID, game.Phase)
		return nil, nil
	}

	var deadline *time.Time
	if d := next.Duration(m.cfg); d > 0 {
		t := m.now().Add(d)
		deadline = &t
	}

	applied, err := m.repo.SwapPhase(ctx, gameID, current, next, deadline, next.Capabilities())
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race to a duplicate trigger. Benign.
		m.logger.Printf("[DUP_TRANSITION] game %s: %s -> %s already applied elsewhere", gameID, current, next)
		return nil, nil
	}

	m.enterPhase(ctx, gameID, next)

	m.logger.Printf("[TRANSITION] game %s: %s -> %s (%s)", gameID, current, next, cause)
	return &Transition{From: current, To: next, Cause: cause, Deadline: deadline}, nil
}

// enterPhase runs phase-entry setup. Failures here degrade, they never roll
// the transition back.
func (m *Machine) enterPhase(ctx context.Context, gameID string, next Phase) {
	if err := m.repo.MarkAIReady(ctx, gameID); err != nil {
		m.logger.Printf("[ENTRY_SETUP] game %s: mark AI ready failed: %v", gameID, err)
	}
	if next.Exploration() {
		if err := m.repo.ResetExplorationBudgets(ctx, gameID, m.explore.ActionsPerPhase); err != nil {
			m.logger.Printf("[ENTRY_SETUP] game %s: budget reset failed: %v", gameID, err)
		}
	}
}

// DeadlineElapsed reports whether the game's phase deadline has passed.
// Untimed phases never elapse.
func (m *Machine) DeadlineElapsed(game *dbmodels.GameDocument) bool {
	if game.PhaseDeadline == nil {
		return false
	}
	return m.now().After(*game.PhaseDeadline)
}
