package scheduler

import (
	"context"
	"log"
	"sort"
	"time"

	"deduction/config"
	dbmodels "deduction/db/models"
	"deduction/prompts"
)

// Reasoner is the slice of the reasoning client the scheduler consumes.
type Reasoner interface {
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

// Repository persists rankings between invocations.
type Repository interface {
	// LastRanking returns the previous ranking, or nil when none exists.
	LastRanking(ctx context.Context, gameID string) (*Ranking, error)
	SaveRanking(ctx context.Context, gameID string, r Ranking) error
}

// Scheduler decides which agent should act next. The reasoning-backed
// ranking is preferred; any failure falls back transparently to the
// deterministic heuristic, so scheduling never blocks game progress.
type Scheduler struct {
	reasoner Reasoner
	repo     Repository
	cfg      config.SchedulerConfig
	logger   *log.Logger
	now      func() time.Time
}

// New builds a scheduler.
func New(reasoner Reasoner, repo Repository, cfg config.SchedulerConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags)
	}
	return &Scheduler{reasoner: reasoner, repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

// rankEntry mirrors the JSON shape requested from the reasoning service.
type rankEntry struct {
	CharacterID  string `json:"character_id"`
	Priority     int    `json:"priority"`
	Reason       string `json:"reason"`
	WantsToSpeak bool   `json:"wants_to_speak"`
}

// Rank produces and persists a full ordering of the given agents.
func (s *Scheduler) Rank(ctx context.Context, gameID string, messages []dbmodels.MessageDocument, agents []AgentState) Ranking {
	prev, err := s.repo.LastRanking(ctx, gameID)
	if err != nil {
		s.logger.Printf("[PREV_RANKING] game %s: %v", gameID, err)
		prev = nil
	}

	ranking := s.reasonedRank(ctx, gameID, messages, agents, prev)
	if ranking == nil {
		ranking = &Ranking{Entries: Heuristic(agents), Source: "heuristic"}
	}

	s.applyFairnessFloor(ranking, agents)
	ranking.CreatedAt = s.now()

	if err := s.repo.SaveRanking(ctx, gameID, *ranking); err != nil {
		s.logger.Printf("[SAVE_RANKING] game %s: %v", gameID, err)
	}
	return *ranking
}

// reasonedRank asks the reasoning service for an ordering. It returns nil
// on any failure so the caller can fall back to the heuristic.
func (s *Scheduler) reasonedRank(ctx context.Context, gameID string, messages []dbmodels.MessageDocument, agents []AgentState, prev *Ranking) *Ranking {
	states := make([]prompts.AgentTurnState, 0, len(agents))
	for _, a := range agents {
		states = append(states, prompts.AgentTurnState{
			CharacterID:  a.CharacterID,
			Name:         a.Name,
			LastSpokeAt:  a.LastSpokeAt,
			KnownFacts:   a.KnownFacts,
			WantsToSpeak: a.WantsToSpeak,
		})
	}
	prompt := prompts.TurnRanking(messages, states, prev.Top())

	var entries []rankEntry
	if err := s.reasoner.GenerateJSON(ctx, prompt, &entries); err != nil {
		s.logger.Printf("[RANK_FALLBACK] game %s: %v", gameID, err)
		return nil
	}

	known := make(map[string]AgentState, len(agents))
	for _, a := range agents {
		known[a.CharacterID] = a
	}

	ranking := &Ranking{Source: "reasoning"}
	seen := make(map[string]bool)
	for _, e := range entries {
		if _, ok := known[e.CharacterID]; !ok || seen[e.CharacterID] {
			continue
		}
		seen[e.CharacterID] = true
		ranking.Entries = append(ranking.Entries, Entry(e))
	}
	// Agents the model forgot get appended in heuristic order.
	for _, e := range Heuristic(agents) {
		if !seen[e.CharacterID] {
			ranking.Entries = append(ranking.Entries, e)
		}
	}
	if len(ranking.Entries) == 0 {
		return nil
	}

	// Last round's top pick does not get to dominate: if ranked first again,
	// demote it to the bottom.
	if top := prev.Top(); top != "" && ranking.Entries[0].CharacterID == top && len(ranking.Entries) > 1 {
		first := ranking.Entries[0]
		ranking.Entries = append(ranking.Entries[1:], first)
	}
	return ranking
}

// applyFairnessFloor promotes any agent starved past the configured number
// of consecutive silent rankings to the front, preserving relative order.
func (s *Scheduler) applyFairnessFloor(r *Ranking, agents []AgentState) {
	if s.cfg.StarvationRounds <= 0 {
		return
	}
	starved := make(map[string]bool)
	for _, a := range agents {
		if a.SilentRounds >= s.cfg.StarvationRounds {
			starved[a.CharacterID] = true
		}
	}
	if len(starved) == 0 {
		return
	}
	var front, rest []Entry
	for _, e := range r.Entries {
		if starved[e.CharacterID] {
			e.Reason = "has not spoken for several rounds"
			front = append(front, e)
		} else {
			rest = append(rest, e)
		}
	}
	r.Entries = append(front, rest...)
}

// Heuristic is the deterministic fallback ordering: agents that have never
// spoken rank first (by join order), the rest by how long ago they last
// spoke, longest-silent first. Ties break on join order then character id.
func Heuristic(agents []AgentState) []Entry {
	sorted := make([]AgentState, len(agents))
	copy(sorted, agents)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.LastSpokeAt == nil && b.LastSpokeAt == nil:
			if a.JoinOrder != b.JoinOrder {
				return a.JoinOrder < b.JoinOrder
			}
			return a.CharacterID < b.CharacterID
		case a.LastSpokeAt == nil:
			return true
		case b.LastSpokeAt == nil:
			return false
		case !a.LastSpokeAt.Equal(*b.LastSpokeAt):
			return a.LastSpokeAt.Before(*b.LastSpokeAt)
		case a.JoinOrder != b.JoinOrder:
			return a.JoinOrder < b.JoinOrder
		default:
			return a.CharacterID < b.CharacterID
		}
	})

	out := make([]Entry, 0, len(sorted))
	for i, a := range sorted {
		reason := "waiting the longest"
		if a.LastSpokeAt == nil {
			reason = "has not spoken yet"
		}
		out = append(out, Entry{
			CharacterID:  a.CharacterID,
			Priority:     100 - i,
			Reason:       reason,
			WantsToSpeak: a.WantsToSpeak,
		})
	}
	return out
}

// TriggerDecision is the auto-trigger policy's verdict.
type TriggerDecision struct {
	Fire    bool
	Elapsed time.Duration
	Reason  string
}

// ShouldAutoTrigger decides whether an AI turn may fire on its own. It is
// eligible only in phases flagged for AI self-triggering, never while an AI
// is already mid-action, and only after the given silence threshold has
// passed since the last message (or when no messages exist yet). Callers
// use the configured periodic threshold for heartbeat checks and re-check
// with the lower invocation-time bound just before firing.
func (s *Scheduler) ShouldAutoTrigger(game *dbmodels.GameDocument, lastMessageAt *time.Time, minSilence time.Duration) TriggerDecision {
	if !game.AIMayTrigger {
		return TriggerDecision{Reason: "phase does not allow AI self-trigger"}
	}
	if game.AIActing {
		return TriggerDecision{Reason: "an AI is already mid-action"}
	}
	if lastMessageAt == nil {
		return TriggerDecision{Fire: true, Reason: "no messages yet"}
	}
	elapsed := s.now().Sub(*lastMessageAt)
	if elapsed < minSilence {
		return TriggerDecision{Elapsed: elapsed, Reason: "conversation still active"}
	}
	return TriggerDecision{Fire: true, Elapsed: elapsed, Reason: "silence threshold exceeded"}
}

// PeriodicThreshold exposes the heartbeat silence gate.
func (s *Scheduler) PeriodicThreshold() time.Duration { return s.cfg.SilenceThreshold }

// InvokeThreshold exposes the lower bound applied at invocation time.
func (s *Scheduler) InvokeThreshold() time.Duration { return s.cfg.MinSilenceAtInvoke }
