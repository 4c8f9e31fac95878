package contradiction

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"deduction/config"
	dbmodels "deduction/db/models"
	"deduction/knowledge"
	"deduction/prompts"
)

// Reasoner is the slice of the reasoning client the engine consumes.
type Reasoner interface {
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

// Engine derives new contradictions from recent dialogue and applies the
// deterministic decay policy. Detection is best-effort: a reasoning failure
// yields an empty result, never an error to the caller.
type Engine struct {
	reasoner Reasoner
	cfg      config.ContradictionConfig
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

// NewEngine builds a contradiction engine.
func NewEngine(reasoner Reasoner, cfg config.ContradictionConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[CONTRADICTION] ", log.LstdFlags)
	}
	return &Engine{
		reasoner: reasoner,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// candidate mirrors the JSON shape requested from the reasoning service.
type candidate struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Parties     []struct {
		CharacterID string `json:"character_id"`
		Excerpt     string `json:"excerpt"`
	} `json:"parties"`
	Severity  int    `json:"severity"`
	Reasoning string `json:"reasoning"`
}

// Detect scans the recent message window for new contradictions against the
// agent's known facts, returning at most the configured number per run.
// With fewer than the minimum message count available it returns nil without
// calling the reasoning service.
func (e *Engine) Detect(ctx context.Context, agentName string, messages []dbmodels.MessageDocument, facts []knowledge.Fact, existing []knowledge.Contradiction) []knowledge.Contradiction {
	if len(messages) < e.cfg.MinMessages {
		return nil
	}
	if len(messages) > e.cfg.MessageWindow {
		messages = messages[len(messages)-e.cfg.MessageWindow:]
	}

	prompt := prompts.ContradictionScan(agentName, messages, facts, existing, e.cfg.MaxPerRun)

	var cands []candidate
	if err := e.reasoner.GenerateJSON(ctx, prompt, &cands); err != nil {
		e.logger.Printf("[DETECT_FAIL] agent %s: %v", agentName, err)
		return nil
	}

	var out []knowledge.Contradiction
	for _, c := range cands {
		if len(out) >= e.cfg.MaxPerRun {
			break
		}
		nc := e.normalize(c)
		if nc == nil {
			continue
		}
		if isDuplicate(*nc, existing) || isDuplicate(*nc, out) {
			continue
		}
		out = append(out, *nc)
	}
	return out
}

// normalize validates a candidate and converts it into a belief-state
// record. Unknown types and empty descriptions are rejected.
func (e *Engine) normalize(c candidate) *knowledge.Contradiction {
	t := knowledge.ContradictionType(c.Type)
	switch t {
	case knowledge.ContradictionStatement, knowledge.ContradictionTimeline, knowledge.ContradictionAction:
	case "knowledge", "alibi":
		t = knowledge.ContradictionStatement
	default:
		return nil
	}
	if c.Description == "" || len(c.Parties) == 0 {
		return nil
	}

	severity := c.Severity
	if severity < 0 {
		severity = 0
	}
	if severity > 100 {
		severity = 100
	}

	parties := make([]knowledge.Party, 0, len(c.Parties))
	for _, p := range c.Parties {
		parties = append(parties, knowledge.Party{CharacterID: p.CharacterID, Excerpt: p.Excerpt})
	}

	return &knowledge.Contradiction{
		ID:           e.newID(),
		Type:         t,
		Description:  c.Description,
		Parties:      parties,
		Severity:     severity,
		Status:       knowledge.ContradictionUnresolved,
		Reasoning:    c.Reasoning,
		DiscoveredAt: e.now(),
	}
}

// isDuplicate applies the dedup rule: exact description match, or the same
// unordered set of involved character ids with the same type.
func isDuplicate(c knowledge.Contradiction, against []knowledge.Contradiction) bool {
	for _, prev := range against {
		if prev.Description == c.Description {
			return true
		}
		if prev.Type == c.Type && samePartySet(prev.Parties, c.Parties) {
			return true
		}
	}
	return false
}

func samePartySet(a, b []knowledge.Party) bool {
	if len(a) != len(b) {
		return false
	}
	ids := func(ps []knowledge.Party) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.CharacterID)
		}
		sort.Strings(out)
		return out
	}
	as, bs := ids(a), ids(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Decay applies the deterministic dismissal policy in place and returns how
// many contradictions it dismissed. No reasoning call is involved:
//   - unresolved older than the dismiss window auto-dismisses
//   - unresolved older than the low-severity window with severity below the
//     floor auto-dismisses
//   - if unresolved still exceed the cap, the oldest excess are dismissed
//     oldest-first
func (e *Engine) Decay(contras []knowledge.Contradiction) int {
	now := e.now()
	dismissed := 0

	for i := range contras {
		if !contras[i].CanTransition(knowledge.ContradictionDismissed) {
			continue
		}
		age := now.Sub(contras[i].DiscoveredAt)
		if age > e.cfg.DismissAfter ||
			(age > e.cfg.LowSeverityAfter && contras[i].Severity < e.cfg.LowSeverityFloor) {
			contras[i].Status = knowledge.ContradictionDismissed
			dismissed++
		}
	}

	var unresolved []int
	for i := range contras {
		if contras[i].Status == knowledge.ContradictionUnresolved {
			unresolved = append(unresolved, i)
		}
	}
	if len(unresolved) > e.cfg.UnresolvedCap {
		sort.SliceStable(unresolved, func(a, b int) bool {
			return contras[unresolved[a]].DiscoveredAt.Before(contras[unresolved[b]].DiscoveredAt)
		})
		excess := len(unresolved) - e.cfg.UnresolvedCap
		for _, idx := range unresolved[:excess] {
			contras[idx].Status = knowledge.ContradictionDismissed
			dismissed++
		}
	}
	return dismissed
}
