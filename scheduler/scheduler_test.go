package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deduction/config"
	dbmodels "deduction/db/models"
)

type fakeReasoner struct {
	response string
	err      error
}

func (f *fakeReasoner) GenerateJSON(_ context.Context, _ string, out any) error {
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

type fakeRepo struct {
	last  *Ranking
	saved []Ranking
}

func (r *fakeRepo) LastRanking(context.Context, string) (*Ranking, error) { return r.last, nil }
func (r *fakeRepo) SaveRanking(_ context.Context, _ string, rk Ranking) error {
	r.saved = append(r.saved, rk)
	return nil
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestScheduler(r Reasoner, repo Repository) *Scheduler {
	s := New(r, repo, config.Default().Scheduler, log.New(io.Discard, "", 0))
	s.now = func() time.Time { return testNow }
	return s
}

func ts(t time.Time) *time.Time { return &t }

func testAgents() []AgentState {
	return []AgentState{
		{CharacterID: "butler", Name: "Butler", LastSpokeAt: ts(testNow.Add(-30 * time.Second)), JoinOrder: 0},
		{CharacterID: "maid", Name: "Maid", LastSpokeAt: ts(testNow.Add(-5 * time.Minute)), JoinOrder: 1},
		{CharacterID: "cook", Name: "Cook", JoinOrder: 2},
		{CharacterID: "heir", Name: "Heir", JoinOrder: 3},
	}
}

func order(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.CharacterID)
	}
	return out
}

func TestHeuristicOrdering(t *testing.T) {
	// Never-spoken agents lead in join order, then longest-silent first.
	got := Heuristic(testAgents())
	assert.Equal(t, []string{"cook", "heir", "maid", "butler"}, order(got))
}

func TestHeuristicDeterministic(t *testing.T) {
	agents := testAgents()
	first := Heuristic(agents)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Heuristic(agents))
	}
}

func TestHeuristicTieBreakOnJoinOrder(t *testing.T) {
	same := testNow.Add(-time.Minute)
	agents := []AgentState{
		{CharacterID: "zed", LastSpokeAt: ts(same), JoinOrder: 1},
		{CharacterID: "amy", LastSpokeAt: ts(same), JoinOrder: 0},
	}
	got := Heuristic(agents)
	assert.Equal(t, []string{"amy", "zed"}, order(got))
}

func TestRankFallsBackOnReasonerError(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestScheduler(&fakeReasoner{err: errors.New("timeout")}, repo)

	got := s.Rank(context.Background(), "g1", nil, testAgents())
	assert.Equal(t, "heuristic", got.Source)
	assert.Equal(t, []string{"cook", "heir", "maid", "butler"}, order(got.Entries))
	require.Len(t, repo.saved, 1, "fallback rankings are persisted too")
}

func TestRankUsesReasonerOrdering(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestScheduler(&fakeReasoner{response: `[
		{"character_id":"maid","priority":90,"reason":"was addressed","wants_to_speak":true},
		{"character_id":"butler","priority":70,"reason":"knows about the key"},
		{"character_id":"cook","priority":40,"reason":"quiet"},
		{"character_id":"heir","priority":20,"reason":"just spoke"}
	]`}, repo)

	got := s.Rank(context.Background(), "g1", nil, testAgents())
	assert.Equal(t, "reasoning", got.Source)
	assert.Equal(t, []string{"maid", "butler", "cook", "heir"}, order(got.Entries))
}

func TestRankDeprioritizesPreviousTop(t *testing.T) {
	repo := &fakeRepo{last: &Ranking{Entries: []Entry{{CharacterID: "maid"}}, Source: "reasoning"}}
	s := newTestScheduler(&fakeReasoner{response: `[
		{"character_id":"maid","priority":90,"reason":"still dominant"},
		{"character_id":"butler","priority":70,"reason":"next"},
		{"character_id":"cook","priority":40,"reason":"quiet"},
		{"character_id":"heir","priority":20,"reason":"quiet"}
	]`}, repo)

	got := s.Rank(context.Background(), "g1", nil, testAgents())
	// Last round's winner gets pushed to the bottom when ranked first again.
	assert.Equal(t, []string{"butler", "cook", "heir", "maid"}, order(got.Entries))
}

func TestRankAppendsForgottenAgents(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestScheduler(&fakeReasoner{response: `[
		{"character_id":"maid","priority":90,"reason":"was addressed"},
		{"character_id":"stranger","priority":80,"reason":"not in this game"}
	]`}, repo)

	got := s.Rank(context.Background(), "g1", nil, testAgents())
	assert.Equal(t, []string{"maid", "cook", "heir", "butler"}, order(got.Entries))
}

func TestRankFairnessFloorPromotesStarved(t *testing.T) {
	agents := testAgents()
	agents[0].SilentRounds = 3 // butler starved past the bound
	repo := &fakeRepo{}
	s := newTestScheduler(&fakeReasoner{response: `[
		{"character_id":"maid","priority":90,"reason":"x"},
		{"character_id":"cook","priority":80,"reason":"x"},
		{"character_id":"heir","priority":70,"reason":"x"},
		{"character_id":"butler","priority":10,"reason":"x"}
	]`}, repo)

	got := s.Rank(context.Background(), "g1", nil, agents)
	assert.Equal(t, "butler", got.Entries[0].CharacterID)
}

func discussionGame() *dbmodels.GameDocument {
	return &dbmodels.GameDocument{Phase: "discussion_1", AIMayTrigger: true}
}

func TestShouldAutoTriggerFiresAfterSilence(t *testing.T) {
	s := newTestScheduler(&fakeReasoner{}, &fakeRepo{})

	// 90 seconds of silence against a 60 second threshold.
	last := testNow.Add(-90 * time.Second)
	got := s.ShouldAutoTrigger(discussionGame(), &last, 60*time.Second)
	assert.True(t, got.Fire)
	assert.Equal(t, 90*time.Second, got.Elapsed)
}

func TestShouldAutoTriggerGates(t *testing.T) {
	s := newTestScheduler(&fakeReasoner{}, &fakeRepo{})
	recent := testNow.Add(-10 * time.Second)

	tests := []struct {
		name string
		game *dbmodels.GameDocument
		last *time.Time
		want bool
	}{
		{"phase forbids AI trigger", &dbmodels.GameDocument{Phase: "exploration_1"}, nil, false},
		{"AI already mid-action", &dbmodels.GameDocument{Phase: "discussion_1", AIMayTrigger: true, AIActing: true}, nil, false},
		{"no messages yet fires", discussionGame(), nil, true},
		{"conversation still active", discussionGame(), &recent, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.ShouldAutoTrigger(tc.game, tc.last, 60*time.Second)
			assert.Equal(t, tc.want, got.Fire, got.Reason)
		})
	}
}
