package summary

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"deduction/config"
	dbmodels "deduction/db/models"
	"deduction/prompts"
)

// Reasoner is the slice of the reasoning client the summarizer consumes.
type Reasoner interface {
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

// Repository is the persistence surface for digests, messages and the
// summarizer lock.
type Repository interface {
	// Digest returns the game's digest, or a fresh zero-version digest when
	// none has been stored yet.
	Digest(ctx context.Context, gameID string) (*Digest, error)
	CountMessagesAfter(ctx context.Context, gameID string, index int) (int, error)
	MessagesAfter(ctx context.Context, gameID string, index, limit int) ([]dbmodels.MessageDocument, error)
	// AcquireLock claims the digest lock iff it is absent or was acquired
	// before staleBefore. Returns false when someone else holds it.
	AcquireLock(ctx context.Context, gameID, holderID string, staleBefore time.Time) (bool, error)
	ReleaseLock(ctx context.Context, gameID, holderID string) error
	// SaveDigest persists the digest iff the stored version still equals
	// expectVersion. Returns false on a version conflict.
	SaveDigest(ctx context.Context, d *Digest, expectVersion int) (bool, error)
}

// Summarizer maintains the single shared case digest per game. Runs are
// batched by message volume and serialized by a lock with a staleness
// timeout for crash recovery. All merge rules are accretion-only, so an
// aborted run that leaves the cursor unchanged can safely reprocess the
// same messages later.
type Summarizer struct {
	repo     Repository
	reasoner Reasoner
	cfg      config.SummaryConfig
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

// New builds a summarizer.
func New(repo Repository, reasoner Reasoner, cfg config.SummaryConfig, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUMMARY] ", log.LstdFlags)
	}
	return &Summarizer{
		repo:     repo,
		reasoner: reasoner,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// mergePayload mirrors the JSON shape requested from the reasoning service.
type mergePayload struct {
	Facts []struct {
		Content  string `json:"content"`
		Category string `json:"category"`
	} `json:"facts"`
	NewQuestions      []string `json:"new_questions"`
	AnsweredQuestions []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"answered_questions"`
	Topics []struct {
		Name     string `json:"name"`
		Mentions int    `json:"mentions"`
	} `json:"topics"`
	RPActions []struct {
		CharacterID string `json:"character_id"`
		Description string `json:"description"`
	} `json:"rp_actions"`
	ContradictionNotes []string `json:"contradiction_notes"`
}

// Run performs one summarization pass for the game. Every outcome short of
// a store read failure is benign: not enough backlog, lock held elsewhere,
// and reasoning failures all leave the digest and cursor untouched.
func (s *Summarizer) Run(ctx context.Context, gameID string) error {
	digest, err := s.repo.Digest(ctx, gameID)
	if err != nil {
		return err
	}

	backlog, err := s.repo.CountMessagesAfter(ctx, gameID, digest.LastMessageIndex)
	if err != nil {
		return err
	}
	if backlog < s.cfg.BatchThreshold {
		return nil
	}

	holderID := s.newID()
	staleBefore := s.now().Add(-s.cfg.LockStaleAfter)
	acquired, err := s.repo.AcquireLock(ctx, gameID, holderID, staleBefore)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Printf("[LOCK_HELD] game %s: digest lock held elsewhere, skipping", gameID)
		return nil
	}
	defer func() {
		if relErr := s.repo.ReleaseLock(context.WithoutCancel(ctx), gameID, holderID); relErr != nil {
			s.logger.Printf("[LOCK_RELEASE] game %s: %v", gameID, relErr)
		}
	}()

	msgs, err := s.repo.MessagesAfter(ctx, gameID, digest.LastMessageIndex, s.cfg.MaxMessagesPerRun)
	if err != nil || len(msgs) == 0 {
		return err
	}

	var payload mergePayload
	if err := s.reasoner.GenerateJSON(ctx, prompts.DigestMerge(digestView(digest), msgs), &payload); err != nil {
		// Aborted run: cursor stays put, next run reprocesses these
		// messages. Accretion keys on content, so that is duplication-safe.
		s.logger.Printf("[RUN_ABORT] game %s: %v", gameID, err)
		return nil
	}

	prevVersion := digest.Version
	s.merge(digest, payload, msgs)
	digest.Version = prevVersion + 1
	digest.LastMessageIndex = msgs[len(msgs)-1].Index
	digest.UpdatedAt = s.now()

	saved, err := s.repo.SaveDigest(ctx, digest, prevVersion)
	if err != nil {
		return err
	}
	if !saved {
		s.logger.Printf("[VERSION_CONFLICT] game %s: digest advanced underneath us, discarding run", gameID)
		return nil
	}
	s.logger.Printf("[RUN_OK] game %s: v%d, cursor %d, %d messages merged", gameID, digest.Version, digest.LastMessageIndex, len(msgs))
	return nil
}

// merge folds a reasoning payload into the digest under accretion-only
// rules: nothing existing is removed or rewritten, open questions may move
// to resolved, topic counters only grow, saturation never unflips.
func (s *Summarizer) merge(d *Digest, p mergePayload, msgs []dbmodels.MessageDocument) {
	now := s.now()

	haveFact := make(map[string]bool, len(d.Facts))
	for _, f := range d.Facts {
		haveFact[f.Content] = true
	}
	for _, f := range p.Facts {
		if f.Content == "" || haveFact[f.Content] {
			continue
		}
		haveFact[f.Content] = true
		d.Facts = append(d.Facts, EstablishedFact{
			Content:  f.Content,
			Category: normalizeCategory(f.Category),
			AddedAt:  now,
			AddedInV: d.Version + 1,
		})
	}

	haveQuestion := make(map[string]int, len(d.Questions))
	for i, q := range d.Questions {
		haveQuestion[q.Content] = i
	}
	for _, aq := range p.AnsweredQuestions {
		if i, ok := haveQuestion[aq.Question]; ok {
			if d.Questions[i].Status == QuestionOpen {
				d.Questions[i].Status = QuestionResolved
				d.Questions[i].Answer = aq.Answer
			}
			continue
		}
		haveQuestion[aq.Question] = len(d.Questions)
		d.Questions = append(d.Questions, Question{Content: aq.Question, Status: QuestionResolved, Answer: aq.Answer})
	}
	for _, q := range p.NewQuestions {
		if q == "" {
			continue
		}
		if _, ok := haveQuestion[q]; ok {
			continue
		}
		haveQuestion[q] = len(d.Questions)
		d.Questions = append(d.Questions, Question{Content: q, Status: QuestionOpen})
	}

	haveTopic := make(map[string]int, len(d.Topics))
	for i, t := range d.Topics {
		haveTopic[t.Name] = i
	}
	for _, t := range p.Topics {
		if t.Name == "" || t.Mentions <= 0 {
			continue
		}
		i, ok := haveTopic[t.Name]
		if !ok {
			haveTopic[t.Name] = len(d.Topics)
			d.Topics = append(d.Topics, Topic{Name: t.Name, Status: TopicActive})
			i = haveTopic[t.Name]
		}
		d.Topics[i].Mentions += t.Mentions
		if d.Topics[i].Mentions >= s.cfg.SaturatedMentions {
			d.Topics[i].Status = TopicSaturated
		}
	}

	for _, a := range p.RPActions {
		if a.Description == "" {
			continue
		}
		d.RPLog = append(d.RPLog, RPAction{CharacterID: a.CharacterID, Description: a.Description, At: now})
	}

	haveNote := make(map[string]bool, len(d.ContradictionNotes))
	for _, n := range d.ContradictionNotes {
		haveNote[n] = true
	}
	for _, n := range p.ContradictionNotes {
		if n == "" || haveNote[n] {
			continue
		}
		haveNote[n] = true
		d.ContradictionNotes = append(d.ContradictionNotes, n)
	}
}

func normalizeCategory(c string) FactCategory {
	switch FactCategory(c) {
	case CategoryTimeline, CategoryAlibi, CategoryEvidence, CategoryRelationship, CategoryMotive:
		return FactCategory(c)
	default:
		return CategoryOther
	}
}

// digestView converts the digest into the prompt-building view.
func digestView(d *Digest) prompts.DigestState {
	view := prompts.DigestState{}
	for _, f := range d.Facts {
		view.Facts = append(view.Facts, string(f.Category)+": "+f.Content)
	}
	for _, q := range d.Questions {
		if q.Status == QuestionOpen {
			view.OpenQuestions = append(view.OpenQuestions, q.Content)
		}
	}
	for _, t := range d.Topics {
		if t.Status == TopicSaturated {
			view.SaturatedTopics = append(view.SaturatedTopics, t.Name)
		}
	}
	return view
}
