package knowledge

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"deduction/config"
)

// ErrNotFound is returned by repositories when an agent has no stored
// belief state.
var ErrNotFound = errors.New("knowledge: agent not found")

// Repository is the persistence surface the store needs. Writes are
// partitioned per agent; concurrent writes to different agents never
// conflict, and same-agent writes resolve last-write-wins.
type Repository interface {
	Base(ctx context.Context, gameID, characterID string) (*Base, error)
	SetCard(ctx context.Context, gameID, characterID string, ck CardKnowledge) error
	PushFact(ctx context.Context, gameID, characterID string, f Fact) error
	SetRelationship(ctx context.Context, gameID, characterID string, rel Relationship) error
}

// Store applies belief-state update rules on top of a Repository.
type Store struct {
	repo   Repository
	cfg    config.RelationshipConfig
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// NewStore builds a Store. A nil logger gets a [KNOWLEDGE] prefixed default.
func NewStore(repo Repository, cfg config.RelationshipConfig, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[KNOWLEDGE] ", log.LstdFlags)
	}
	return &Store{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RecordCardKnowledge upserts an agent's belief about a card. A direct
// observation always overrides prior state; any other source only upgrades
// confidence and never downgrades it. Recording identical knowledge twice
// is a no-op.
func (s *Store) RecordCardKnowledge(ctx context.Context, gameID, characterID string, ck CardKnowledge) error {
	base, err := s.repo.Base(ctx, gameID, characterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Printf("[CARD_SKIP] unknown agent %s in game %s", characterID, gameID)
			return nil
		}
		return err
	}

	prev, exists := base.Cards[ck.CardID]
	if exists && ck.Source != SourceDirect {
		if ck.Confidence <= prev.Confidence {
			return nil
		}
	}
	if exists && ck.Source == SourceDirect && prev.Source == SourceDirect &&
		prev.Status == ck.Status && prev.HolderID == ck.HolderID &&
		prev.ContentGuess == ck.ContentGuess && prev.Confidence == ck.Confidence {
		return nil
	}

	ck.UpdatedAt = s.now()
	return s.writeOnceRetried(ctx, "card", characterID, func() error {
		return s.repo.SetCard(ctx, gameID, characterID, ck)
	})
}

// AddFact appends to the agent's fact list. With dedupe set, a fact whose
// content exactly matches an existing one is dropped silently.
func (s *Store) AddFact(ctx context.Context, gameID, characterID, content string, source Source, confidence int, tags []string, dedupe bool) error {
	base, err := s.repo.Base(ctx, gameID, characterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Printf("[FACT_SKIP] unknown agent %s in game %s", characterID, gameID)
			return nil
		}
		return err
	}

	if dedupe {
		for _, f := range base.Facts {
			if f.Content == content {
				return nil
			}
		}
	}

	fact := Fact{
		ID:         s.newID(),
		Content:    content,
		Source:     source,
		Confidence: confidence,
		Tags:       tags,
		CreatedAt:  s.now(),
	}
	return s.writeOnceRetried(ctx, "fact", characterID, func() error {
		return s.repo.PushFact(ctx, gameID, characterID, fact)
	})
}

// UpdateRelationship applies trust/suspicion deltas from one agent toward a
// target character, clamping both into [0,100], appending an interaction
// record, and recomputing the emotional tone.
func (s *Store) UpdateRelationship(ctx context.Context, gameID, characterID, targetID string, trustDelta, suspicionDelta int, note, interactionType string) error {
	if characterID == targetID {
		return nil
	}
	base, err := s.repo.Base(ctx, gameID, characterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Printf("[REL_SKIP] unknown agent %s in game %s", characterID, gameID)
			return nil
		}
		return err
	}

	rel, ok := base.Relationships[targetID]
	if !ok {
		rel = Relationship{TargetID: targetID, Trust: 50, Suspicion: 10, Tone: ToneNeutral}
	}
	rel.Trust = clamp(rel.Trust + trustDelta)
	rel.Suspicion = clamp(rel.Suspicion + suspicionDelta)
	rel.History = append(rel.History, Interaction{
		Type:           interactionType,
		Note:           note,
		TrustDelta:     trustDelta,
		SuspicionDelta: suspicionDelta,
		At:             s.now(),
	})
	rel.Tone = s.tone(rel.Trust, rel.Suspicion)

	return s.writeOnceRetried(ctx, "relationship", characterID, func() error {
		return s.repo.SetRelationship(ctx, gameID, characterID, rel)
	})
}

// tone maps trust and suspicion onto an emotional register. Suspicion wins
// over trust when both cross their thresholds.
func (s *Store) tone(trust, suspicion int) Tone {
	switch {
	case suspicion > s.cfg.TenseSuspicion+15:
		return ToneHostile
	case suspicion > s.cfg.TenseSuspicion:
		return ToneTense
	case trust >= s.cfg.WarmTrust+15:
		return ToneTrusting
	case trust >= s.cfg.WarmTrust:
		return ToneWarm
	case trust < s.cfg.ColdTrust:
		return ToneCold
	default:
		return ToneNeutral
	}
}

// writeOnceRetried retries a failed write once, then drops it with a log
// line. Belief state is best-effort; a dropped update degrades the agent,
// it does not corrupt the game.
func (s *Store) writeOnceRetried(ctx context.Context, kind, characterID string, write func() error) error {
	err := write()
	if err == nil {
		return nil
	}
	s.logger.Printf("[WRITE_RETRY] %s write for agent %s failed: %v", kind, characterID, err)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err = write(); err != nil {
		s.logger.Printf("[WRITE_DROP] %s write for agent %s dropped after retry: %v", kind, characterID, err)
	}
	return nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
