package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deduction/config"
	"deduction/contradiction"
	"deduction/db"
	dbmodels "deduction/db/models"
	"deduction/knowledge"
	"deduction/models"
	"deduction/phase"
	"deduction/scheduler"
	"deduction/summary"
)

// Trigger is why a cognition cycle was requested.
type Trigger string

const (
	TriggerPhaseChange  Trigger = "phase_change"
	TriggerNewMessage   Trigger = "new_message"
	TriggerTimerTick    Trigger = "timer_tick"
	TriggerCardRevealed Trigger = "card_revealed"
	TriggerPlayerJoined Trigger = "player_joined"
	TriggerManual       Trigger = "manual"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerPhaseChange, TriggerNewMessage, TriggerTimerTick,
		TriggerCardRevealed, TriggerPlayerJoined, TriggerManual:
		return true
	}
	return false
}

// Validation and lookup failures surfaced to command callers. Everything
// else inside the engine degrades rather than propagating.
var (
	ErrGameEnded      = errors.New("engine: game has ended")
	ErrWrongPhase     = errors.New("engine: action not allowed in current phase")
	ErrPlayerNotFound = errors.New("engine: player not part of this game")
	ErrCardNotFound   = errors.New("engine: unknown card")
	ErrNoBudget       = errors.New("engine: no exploration actions left")
)

// Reasoner is the slice of the reasoning client the engine itself consumes
// for dialogue and vote rationales.
type Reasoner interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Engine drives AI cognition and turn flow for game instances. All state
// lives in the document store; the engine itself is stateless and safe to
// invoke concurrently, relying on the store's conditional writes for the
// AI-acting flag, phase transitions and the digest lock.
type Engine struct {
	cfg        *config.Config
	store      *db.Store
	knowledge  *knowledge.Store
	contras    *contradiction.Engine
	sched      *scheduler.Scheduler
	machine    *phase.Machine
	summarizer *summary.Summarizer
	reasoner   Reasoner
	logger     *log.Logger
	now        func() time.Time
}

// New wires the engine from its collaborators.
func New(cfg *config.Config, store *db.Store, ks *knowledge.Store, ce *contradiction.Engine, sched *scheduler.Scheduler, machine *phase.Machine, sum *summary.Summarizer, reasoner Reasoner, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	return &Engine{
		cfg:        cfg,
		store:      store,
		knowledge:  ks,
		contras:    ce,
		sched:      sched,
		machine:    machine,
		summarizer: sum,
		reasoner:   reasoner,
		logger:     logger,
		now:        time.Now,
	}
}

// agentStates converts agent documents into scheduler input, using the
// player list order as the stable join-order tie-break.
func agentStates(game *dbmodels.GameDocument, agents []dbmodels.AgentDocument) []scheduler.AgentState {
	joinOrder := make(map[string]int, len(game.Players))
	for i, p := range game.Players {
		joinOrder[p.CharacterID] = i
	}

	states := make([]scheduler.AgentState, 0, len(agents))
	for _, a := range agents {
		factCount := 0
		if a.Knowledge != nil {
			factCount = len(a.Knowledge.Facts)
		}
		states = append(states, scheduler.AgentState{
			CharacterID:  a.CharacterID,
			Name:         a.CharacterName,
			LastSpokeAt:  a.LastSpokeAt,
			KnownFacts:   factCount,
			WantsToSpeak: a.WantsToSpeak,
			SilentRounds: a.SilentRounds,
			JoinOrder:    joinOrder[a.CharacterID],
		})
	}
	return states
}

// mustObjectID parses a known-good hex id; callers only pass ids that
// already resolved a game document.
func mustObjectID(id string) primitive.ObjectID {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID
	}
	return objID
}

// scenarioFor loads the scenario content behind a game.
func (e *Engine) scenarioFor(ctx context.Context, game *dbmodels.GameDocument) (*models.ScenarioContent, error) {
	sc, err := e.store.Scenario(ctx, game.ScenarioID)
	if err != nil {
		return nil, err
	}
	return &sc.Content, nil
}
