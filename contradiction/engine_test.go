package contradiction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deduction/config"
	dbmodels "deduction/db/models"
	"deduction/knowledge"
)

// fakeReasoner replays a canned JSON response or fails.
type fakeReasoner struct {
	response string
	err      error
	calls    int
}

func (f *fakeReasoner) GenerateJSON(_ context.Context, _ string, out any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(r *fakeReasoner) *Engine {
	e := NewEngine(r, config.Default().Contradiction, log.New(io.Discard, "", 0))
	e.now = func() time.Time { return testNow }
	n := 0
	e.newID = func() string { n++; return fmt.Sprintf("c-%d", n) }
	return e
}

func messages(n int) []dbmodels.MessageDocument {
	out := make([]dbmodels.MessageDocument, n)
	for i := range out {
		out[i] = dbmodels.MessageDocument{CharacterID: "butler", Content: fmt.Sprintf("line %d", i), Index: i + 1}
	}
	return out
}

func TestDetectSkipsBelowMinimumMessages(t *testing.T) {
	r := &fakeReasoner{response: `[]`}
	e := newTestEngine(r)

	// Two messages: below the minimum, the reasoning service is never called.
	got := e.Detect(context.Background(), "Butler", messages(2), nil, nil)
	assert.Nil(t, got)
	assert.Zero(t, r.calls)
}

func TestDetectCapsPerRun(t *testing.T) {
	r := &fakeReasoner{response: `[
		{"type":"statement","description":"a","parties":[{"character_id":"maid","excerpt":"x"}],"severity":50,"reasoning":"r"},
		{"type":"timeline","description":"b","parties":[{"character_id":"cook","excerpt":"y"}],"severity":60,"reasoning":"r"},
		{"type":"action","description":"c","parties":[{"character_id":"heir","excerpt":"z"}],"severity":70,"reasoning":"r"}
	]`}
	e := newTestEngine(r)

	got := e.Detect(context.Background(), "Butler", messages(5), nil, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Description)
	assert.Equal(t, "b", got[1].Description)
	for _, c := range got {
		assert.Equal(t, knowledge.ContradictionUnresolved, c.Status)
		assert.Equal(t, testNow, c.DiscoveredAt)
	}
}

func TestDetectReasonerFailureReturnsEmpty(t *testing.T) {
	r := &fakeReasoner{err: errors.New("rate limited")}
	e := newTestEngine(r)

	got := e.Detect(context.Background(), "Butler", messages(5), nil, nil)
	assert.Nil(t, got)
}

func TestDetectDedup(t *testing.T) {
	existing := []knowledge.Contradiction{{
		ID:          "old-1",
		Type:        knowledge.ContradictionStatement,
		Description: "the butler claims he never left the kitchen",
		Parties: []knowledge.Party{
			{CharacterID: "butler", Excerpt: "I never left"},
			{CharacterID: "maid", Excerpt: "I saw him upstairs"},
		},
		Status:       knowledge.ContradictionUnresolved,
		DiscoveredAt: testNow.Add(-time.Minute),
	}}

	tests := []struct {
		name     string
		response string
		wantLen  int
	}{
		{
			name:     "exact description match is dropped",
			response: `[{"type":"timeline","description":"the butler claims he never left the kitchen","parties":[{"character_id":"cook","excerpt":"x"}],"severity":40,"reasoning":"r"}]`,
			wantLen:  0,
		},
		{
			name:     "same party set and type is dropped regardless of order",
			response: `[{"type":"statement","description":"a fresh wording","parties":[{"character_id":"maid","excerpt":"a"},{"character_id":"butler","excerpt":"b"}],"severity":40,"reasoning":"r"}]`,
			wantLen:  0,
		},
		{
			name:     "same party set but different type is kept",
			response: `[{"type":"action","description":"a fresh wording","parties":[{"character_id":"maid","excerpt":"a"},{"character_id":"butler","excerpt":"b"}],"severity":40,"reasoning":"r"}]`,
			wantLen:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(&fakeReasoner{response: tc.response})
			got := e.Detect(context.Background(), "Butler", messages(5), nil, existing)
			assert.Len(t, got, tc.wantLen)
		})
	}
}

func TestDetectNormalization(t *testing.T) {
	r := &fakeReasoner{response: `[
		{"type":"alibi","description":"folds into statement","parties":[{"character_id":"maid","excerpt":"x"}],"severity":250,"reasoning":"r"},
		{"type":"gossip","description":"unknown type dropped","parties":[{"character_id":"cook","excerpt":"y"}],"severity":10,"reasoning":"r"}
	]`}
	e := newTestEngine(r)

	got := e.Detect(context.Background(), "Butler", messages(5), nil, nil)
	require.Len(t, got, 1)
	assert.Equal(t, knowledge.ContradictionStatement, got[0].Type)
	assert.Equal(t, 100, got[0].Severity)
}

func unresolvedCount(contras []knowledge.Contradiction) int {
	n := 0
	for _, c := range contras {
		if c.Status == knowledge.ContradictionUnresolved {
			n++
		}
	}
	return n
}

func TestDecayAgeWindows(t *testing.T) {
	e := newTestEngine(&fakeReasoner{})

	contras := []knowledge.Contradiction{
		{ID: "fresh", Status: knowledge.ContradictionUnresolved, Severity: 10, DiscoveredAt: testNow.Add(-5 * time.Minute)},
		{ID: "old-low", Status: knowledge.ContradictionUnresolved, Severity: 40, DiscoveredAt: testNow.Add(-12 * time.Minute)},
		{ID: "old-high", Status: knowledge.ContradictionUnresolved, Severity: 90, DiscoveredAt: testNow.Add(-12 * time.Minute)},
		{ID: "ancient", Status: knowledge.ContradictionUnresolved, Severity: 95, DiscoveredAt: testNow.Add(-25 * time.Minute)},
		{ID: "done", Status: knowledge.ContradictionExplained, Severity: 95, DiscoveredAt: testNow.Add(-25 * time.Minute)},
	}

	dismissed := e.Decay(contras)
	assert.Equal(t, 2, dismissed)

	byID := map[string]knowledge.ContradictionStatus{}
	for _, c := range contras {
		byID[c.ID] = c.Status
	}
	assert.Equal(t, knowledge.ContradictionUnresolved, byID["fresh"])
	assert.Equal(t, knowledge.ContradictionDismissed, byID["old-low"], "low severity past 10 minutes auto-dismisses")
	assert.Equal(t, knowledge.ContradictionUnresolved, byID["old-high"])
	assert.Equal(t, knowledge.ContradictionDismissed, byID["ancient"], "nothing unresolved survives past 20 minutes")
	assert.Equal(t, knowledge.ContradictionExplained, byID["done"], "explained entries are untouched")
}

func TestDecayCapDismissesOldestFirst(t *testing.T) {
	e := newTestEngine(&fakeReasoner{})

	// Eleven fresh, high-severity unresolved entries against a cap of ten.
	var contras []knowledge.Contradiction
	for i := 0; i < 11; i++ {
		contras = append(contras, knowledge.Contradiction{
			ID:           fmt.Sprintf("c-%02d", i),
			Status:       knowledge.ContradictionUnresolved,
			Severity:     90,
			DiscoveredAt: testNow.Add(-time.Duration(i) * time.Second),
		})
	}

	dismissed := e.Decay(contras)
	assert.Equal(t, 1, dismissed)
	assert.Equal(t, 10, unresolvedCount(contras))
	// c-10 has the oldest timestamp and is the one dismissed.
	assert.Equal(t, knowledge.ContradictionDismissed, contras[10].Status)
}
