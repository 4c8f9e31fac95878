package phase

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deduction/config"
	dbmodels "deduction/db/models"
)

type fakeRepo struct {
	game *dbmodels.GameDocument

	// afterRead runs once after the next Game call, to model a concurrent
	// writer slipping in between the snapshot and the conditional swap.
	afterRead func()

	swaps        int
	aiReadyCalls int
	budgetResets []int
}

func (r *fakeRepo) Game(context.Context, string) (*dbmodels.GameDocument, error) {
	copied := *r.game
	if r.afterRead != nil {
		hook := r.afterRead
		r.afterRead = nil
		hook()
	}
	return &copied, nil
}

func (r *fakeRepo) SwapPhase(_ context.Context, _ string, from, to Phase, deadline *time.Time, caps Capabilities) (bool, error) {
	if Phase(r.game.Phase) != from {
		return false, nil
	}
	r.swaps++
	r.game.Phase = string(to)
	r.game.PhaseDeadline = deadline
	r.game.HumansMayAct = caps.HumansMayAct
	r.game.AIMayTrigger = caps.AIMayTrigger
	r.game.AIActing = false
	return true, nil
}

func (r *fakeRepo) MarkAIReady(context.Context, string) error {
	r.aiReadyCalls++
	return nil
}

func (r *fakeRepo) ResetExplorationBudgets(_ context.Context, _ string, budget int) error {
	r.budgetResets = append(r.budgetResets, budget)
	return nil
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestMachine(repo *fakeRepo) *Machine {
	cfg := config.Default()
	m := NewMachine(repo, cfg.Phases, cfg.Exploration, log.New(io.Discard, "", 0))
	m.now = func() time.Time { return testNow }
	return m
}

func TestAdvanceWalksSequence(t *testing.T) {
	repo := &fakeRepo{game: &dbmodels.GameDocument{Phase: string(Setup), HostID: "host"}}
	m := newTestMachine(repo)

	want := []Phase{Lobby, Prologue, Exploration1, Discussion1, Exploration2, Discussion2, Voting, Ending, Ended}
	for _, next := range want {
		tr, err := m.Advance(context.Background(), "g1", CauseConditionMet, "")
		require.NoError(t, err)
		require.NotNil(t, tr)
		assert.Equal(t, next, tr.To)
	}

	// A further advance from the terminal phase is a quiet no-op.
	tr, err := m.Advance(context.Background(), "g1", CauseConditionMet, "")
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, len(want), repo.swaps)
}

func TestAdvanceManualRequiresHost(t *testing.T) {
	repo := &fakeRepo{game: &dbmodels.GameDocument{Phase: string(Lobby), HostID: "host"}}
	m := newTestMachine(repo)

	_, err := m.Advance(context.Background(), "g1", CauseManual, "guest")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, string(Lobby), repo.game.Phase)

	tr, err := m.Advance(context.Background(), "g1", CauseManual, "host")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, Prologue, tr.To)
}

// Two callers react to the same deadline; only one may apply the change.
func TestAdvanceDuplicateRequestsApplyOnce(t *testing.T) {
	repo := &fakeRepo{game: &dbmodels.GameDocument{Phase: string(Discussion1), HostID: "host"}}
	m := newTestMachine(repo)

	// The rival caller wins the swap between our snapshot and our write.
	repo.afterRead = func() { repo.game.Phase = string(Exploration2) }

	tr, err := m.Advance(context.Background(), "g1", CauseTimer, "")
	require.NoError(t, err)
	assert.Nil(t, tr, "losing the race is benign, not an error")
	assert.Equal(t, 0, repo.swaps, "our conditional swap must be rejected")
	assert.Equal(t, string(Exploration2), repo.game.Phase)
}

func TestAdvanceSetsDeadlineAndCapabilities(t *testing.T) {
	repo := &fakeRepo{game: &dbmodels.GameDocument{Phase: string(Prologue), HostID: "host"}}
	m := newTestMachine(repo)

	tr, err := m.Advance(context.Background(), "g1", CauseConditionMet, "")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, Exploration1, tr.To)

	require.NotNil(t, tr.Deadline)
	assert.Equal(t, testNow.Add(config.Default().Phases.Exploration), *tr.Deadline)

	assert.True(t, repo.game.HumansMayAct)
	assert.False(t, repo.game.AIMayTrigger, "AI does not self-trigger during exploration")
	assert.False(t, repo.game.AIActing, "acting flag clears on every transition")

	require.Len(t, repo.budgetResets, 1)
	assert.Equal(t, config.Default().Exploration.ActionsPerPhase, repo.budgetResets[0])
	assert.Equal(t, 1, repo.aiReadyCalls)
}

func TestAdvanceIntoDiscussionEnablesAITrigger(t *testing.T) {
	repo := &fakeRepo{game: &dbmodels.GameDocument{Phase: string(Exploration1), HostID: "host"}}
	m := newTestMachine(repo)

	tr, err := m.Advance(context.Background(), "g1", CauseConditionMet, "")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, Discussion1, tr.To)
	assert.True(t, repo.game.AIMayTrigger)
	assert.Empty(t, repo.budgetResets, "budgets refill only on exploration entry")
}

func TestDeadlineElapsed(t *testing.T) {
	m := newTestMachine(&fakeRepo{})

	past := testNow.Add(-time.Second)
	future := testNow.Add(time.Minute)

	assert.False(t, m.DeadlineElapsed(&dbmodels.GameDocument{}), "untimed phases never elapse")
	assert.True(t, m.DeadlineElapsed(&dbmodels.GameDocument{PhaseDeadline: &past}))
	assert.False(t, m.DeadlineElapsed(&dbmodels.GameDocument{PhaseDeadline: &future}))
}
