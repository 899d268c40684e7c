package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func TestTextMatch_FractionOfTermsPresent(t *testing.T) {
	d := newDiscovery(uuid.New(), "Foo causes a bar issue")
	assert.Equal(t, 1.0, textMatch(d, []string{"foo", "bar"}))

	d2 := newDiscovery(uuid.New(), "Foo only")
	assert.Equal(t, 0.5, textMatch(d2, []string{"foo", "bar"}))

	assert.Equal(t, 1.0, textMatch(d, nil), "no terms means no filtering: every candidate matches")
}

func TestRecencyDecay_ZeroAgeIsOne_HalfLifeIsHalf(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, recencyDecay(now, now))
	assert.Equal(t, 1.0, recencyDecay(now.Add(time.Hour), now), "future updatedAt: non-positive age clamps to 1")

	aged := now.Add(-recencyHalfLifeDays * 24 * time.Hour)
	assert.InDelta(t, 0.5, recencyDecay(aged, now), 1e-9)
}

func TestTagOverlapBoost_ScalesWithFractionOverlap(t *testing.T) {
	assert.Equal(t, 1.0, tagOverlapBoost([]string{"a"}, nil), "no requested tags: neutral boost")
	assert.InDelta(t, 0.85, tagOverlapBoost([]string{"a"}, []string{"a", "b"}), 1e-9)
	assert.InDelta(t, 0.7, tagOverlapBoost(nil, []string{"a"}), 1e-9)
	assert.Equal(t, 1.0, tagOverlapBoost([]string{"a", "b"}, []string{"a", "b"}))
}

func TestRankByRelevance_HigherCombinedScoreWins(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	d1 := newDiscovery(uuid.New(), "refactor search index")
	d1.Tags = []string{"infra"}
	d1.UpdatedAt = now // age 0 -> decay 1

	d2 := newDiscovery(uuid.New(), "improve search latency")
	d2.Tags = nil
	d2.UpdatedAt = now.Add(-recencyHalfLifeDays * 24 * time.Hour) // decay 0.5

	filter := model.SearchFilter{Query: "search", Tags: []string{"infra"}}
	ranked := rankByRelevance([]model.Discovery{d2, d1}, filter, now, 10)

	require.Len(t, ranked, 2)
	assert.Equal(t, d1.ID, ranked[0].ID, "score 1.0*1.0*1.0 beats 1.0*0.5*0.7")
	assert.Equal(t, d2.ID, ranked[1].ID)
}

func TestRankByRelevance_TiesBrokenByUpdatedAtDescending(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	older := newDiscovery(uuid.New(), "search thing")
	older.UpdatedAt = now.Add(time.Hour) // future: age<=0 -> decay 1

	newer := newDiscovery(uuid.New(), "search thing")
	newer.UpdatedAt = now.Add(2 * time.Hour) // further future: age<=0 -> decay 1, identical score

	filter := model.SearchFilter{Query: "search"}
	ranked := rankByRelevance([]model.Discovery{older, newer}, filter, now, 10)

	require.Len(t, ranked, 2)
	assert.Equal(t, newer.ID, ranked[0].ID, "equal score: later UpdatedAt sorts first")
	assert.Equal(t, older.ID, ranked[1].ID)
}

func TestRankByRelevance_ZeroMatchCandidatesDropped(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	d := newDiscovery(uuid.New(), "unrelated summary")

	ranked := rankByRelevance([]model.Discovery{d}, model.SearchFilter{Query: "search"}, now, 10)
	assert.Empty(t, ranked)
}

func TestSearch_RelevanceWithoutQueryIsRejected(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	_, err := svc.Search(context.Background(), model.SearchFilter{SortBy: model.SortRelevance}, time.Now())
	assert.Error(t, err)
}

func TestSearch_RelevanceWidensCandidatePoolBeforeRescoring(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	d := newDiscovery(uuid.New(), "search result")
	d.UpdatedAt = now
	store.searchResults = []model.Discovery{d}

	svc := NewService(store, nil)
	_, err := svc.Search(context.Background(), model.SearchFilter{SortBy: model.SortRelevance, Query: "search", Limit: 2}, now)
	require.NoError(t, err)
	assert.Equal(t, 6, store.lastFilter.Limit, "relevanceCandidatePool(3) * requested limit(2)")
}

func TestSearch_NonRelevancePassesThroughWithDefaultLimit(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	_, err := svc.Search(context.Background(), model.SearchFilter{SortBy: model.SortCreatedAt}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, defaultSearchLimit, store.lastFilter.Limit)
}
