package knowledge

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deduction/config"
)

// fakeRepo is an in-memory knowledge repository keyed by character id.
type fakeRepo struct {
	bases        map[string]*Base
	failSetCard  int // fail the next N SetCard calls
	setCardCalls int
}

func newFakeRepo(characterIDs ...string) *fakeRepo {
	r := &fakeRepo{bases: make(map[string]*Base)}
	for _, id := range characterIDs {
		r.bases[id] = NewBase()
	}
	return r
}

func (r *fakeRepo) Base(_ context.Context, _, characterID string) (*Base, error) {
	b, ok := r.bases[characterID]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (r *fakeRepo) SetCard(_ context.Context, _, characterID string, ck CardKnowledge) error {
	r.setCardCalls++
	if r.failSetCard > 0 {
		r.failSetCard--
		return errors.New("transient write failure")
	}
	r.bases[characterID].Cards[ck.CardID] = ck
	return nil
}

func (r *fakeRepo) PushFact(_ context.Context, _, characterID string, f Fact) error {
	b := r.bases[characterID]
	b.Facts = append(b.Facts, f)
	return nil
}

func (r *fakeRepo) SetRelationship(_ context.Context, _, characterID string, rel Relationship) error {
	r.bases[characterID].Relationships[rel.TargetID] = rel
	return nil
}

func newTestStore(repo Repository) *Store {
	s := NewStore(repo, config.Default().Relationship, log.New(io.Discard, "", 0))
	s.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "fixed-id" }
	return s
}

func TestRecordCardKnowledgeIdempotent(t *testing.T) {
	repo := newFakeRepo("butler")
	store := newTestStore(repo)
	ctx := context.Background()

	ck := CardKnowledge{CardID: "card_1", Status: CardKnown, HolderID: "maid", Confidence: 80, Source: SourceDirect}
	require.NoError(t, store.RecordCardKnowledge(ctx, "g1", "butler", ck))
	first := repo.bases["butler"].Cards["card_1"]

	// Recording the identical knowledge again must not change anything.
	require.NoError(t, store.RecordCardKnowledge(ctx, "g1", "butler", ck))
	assert.Equal(t, first, repo.bases["butler"].Cards["card_1"])
	assert.Equal(t, 1, repo.setCardCalls)
}

func TestRecordCardKnowledgeSourceRules(t *testing.T) {
	tests := []struct {
		name           string
		second         CardKnowledge
		wantConfidence int
		wantStatus     CardStatus
	}{
		{
			name:           "direct overrides even with lower confidence",
			second:         CardKnowledge{CardID: "card_1", Status: CardSeenHolder, Confidence: 30, Source: SourceDirect},
			wantConfidence: 30,
			wantStatus:     CardSeenHolder,
		},
		{
			name:           "testimony upgrades confidence",
			second:         CardKnowledge{CardID: "card_1", Status: CardDeduced, Confidence: 90, Source: SourceTestimony},
			wantConfidence: 90,
			wantStatus:     CardDeduced,
		},
		{
			name:           "testimony never downgrades confidence",
			second:         CardKnowledge{CardID: "card_1", Status: CardSeenHolder, Confidence: 20, Source: SourceTestimony},
			wantConfidence: 60,
			wantStatus:     CardKnown,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo("butler")
			store := newTestStore(repo)
			ctx := context.Background()

			require.NoError(t, store.RecordCardKnowledge(ctx, "g1", "butler",
				CardKnowledge{CardID: "card_1", Status: CardKnown, Confidence: 60, Source: SourceDirect}))
			require.NoError(t, store.RecordCardKnowledge(ctx, "g1", "butler", tc.second))

			got := repo.bases["butler"].Cards["card_1"]
			assert.Equal(t, tc.wantConfidence, got.Confidence)
			assert.Equal(t, tc.wantStatus, got.Status)
		})
	}
}

func TestRecordCardKnowledgeUnknownAgent(t *testing.T) {
	repo := newFakeRepo("butler")
	store := newTestStore(repo)

	// Unknown agents are a warning, never a failure.
	err := store.RecordCardKnowledge(context.Background(), "g1", "ghost",
		CardKnowledge{CardID: "card_1", Status: CardKnown, Confidence: 50, Source: SourceDirect})
	assert.NoError(t, err)
	assert.Zero(t, repo.setCardCalls)
}

func TestRecordCardKnowledgeRetriesOnce(t *testing.T) {
	repo := newFakeRepo("butler")
	repo.failSetCard = 1
	store := newTestStore(repo)

	err := store.RecordCardKnowledge(context.Background(), "g1", "butler",
		CardKnowledge{CardID: "card_1", Status: CardKnown, Confidence: 50, Source: SourceDirect})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.setCardCalls)
	assert.Contains(t, repo.bases["butler"].Cards, "card_1")
}

func TestRecordCardKnowledgeDropsAfterSecondFailure(t *testing.T) {
	repo := newFakeRepo("butler")
	repo.failSetCard = 2
	store := newTestStore(repo)

	// Both attempts fail: the update is dropped, not surfaced.
	err := store.RecordCardKnowledge(context.Background(), "g1", "butler",
		CardKnowledge{CardID: "card_1", Status: CardKnown, Confidence: 50, Source: SourceDirect})
	assert.NoError(t, err)
	assert.NotContains(t, repo.bases["butler"].Cards, "card_1")
}

func TestAddFactDedupe(t *testing.T) {
	repo := newFakeRepo("maid")
	store := newTestStore(repo)
	ctx := context.Background()

	require.NoError(t, store.AddFact(ctx, "g1", "maid", "the study was locked", SourceTestimony, 70, nil, true))
	require.NoError(t, store.AddFact(ctx, "g1", "maid", "the study was locked", SourceTestimony, 70, nil, true))
	assert.Len(t, repo.bases["maid"].Facts, 1)

	// Without dedupe the duplicate is appended.
	require.NoError(t, store.AddFact(ctx, "g1", "maid", "the study was locked", SourceTestimony, 70, nil, false))
	assert.Len(t, repo.bases["maid"].Facts, 2)
}

func TestUpdateRelationshipClamping(t *testing.T) {
	tests := []struct {
		name           string
		trustDelta     int
		suspicionDelta int
		wantTrust      int
		wantSuspicion  int
	}{
		{"huge positive deltas clamp to 100", 500, 500, 100, 100},
		{"huge negative deltas clamp to 0", -500, -500, 0, 0},
		{"ordinary deltas apply from defaults", 10, 25, 60, 35},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo("butler")
			store := newTestStore(repo)

			err := store.UpdateRelationship(context.Background(), "g1", "butler", "maid",
				tc.trustDelta, tc.suspicionDelta, "note", "dialogue")
			require.NoError(t, err)

			rel := repo.bases["butler"].Relationships["maid"]
			assert.Equal(t, tc.wantTrust, rel.Trust)
			assert.Equal(t, tc.wantSuspicion, rel.Suspicion)
			assert.Len(t, rel.History, 1)
		})
	}
}

func TestUpdateRelationshipTone(t *testing.T) {
	tests := []struct {
		name           string
		trustDelta     int
		suspicionDelta int
		want           Tone
	}{
		{"high suspicion turns tense", 0, 65, ToneTense},
		{"extreme suspicion turns hostile", 0, 90, ToneHostile},
		{"high trust turns warm", 25, 0, ToneWarm},
		{"extreme trust turns trusting", 40, 0, ToneTrusting},
		{"low trust turns cold", -25, 0, ToneCold},
		{"defaults stay neutral", 0, 0, ToneNeutral},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo("butler")
			store := newTestStore(repo)

			err := store.UpdateRelationship(context.Background(), "g1", "butler", "maid",
				tc.trustDelta, tc.suspicionDelta, "", "dialogue")
			require.NoError(t, err)
			assert.Equal(t, tc.want, repo.bases["butler"].Relationships["maid"].Tone)
		})
	}
}

func TestUpdateRelationshipSelfIsNoop(t *testing.T) {
	repo := newFakeRepo("butler")
	store := newTestStore(repo)

	require.NoError(t, store.UpdateRelationship(context.Background(), "g1", "butler", "butler", 10, 10, "", "dialogue"))
	assert.Empty(t, repo.bases["butler"].Relationships)
}
