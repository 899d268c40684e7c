package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// relevanceCandidatePool widens the search beyond the caller's requested
// limit before re-scoring, so the recency/tag-overlap blend has more than
// the storage layer's raw text-rank order to choose from.
const relevanceCandidatePool = 3

const maxRelevanceFetch = 500

// recencyHalfLifeDays sets how quickly a discovery's age discounts its
// relevance score. Discoveries in this graph churn on the order of days,
// not the months-long half-life a legal record store would use, so this is
// tuned short relative to a typical archival-search scale.
const recencyHalfLifeDays = 14.0

const defaultSearchLimit = 50

// Search executes a discovery search. sort_by=relevance requires a
// non-empty query; the store's text-rank order is then widened and
// re-scored by a text-match x recency x tag-overlap blend, grounded on the
// same multiplicative rescoring shape used for decision search. Any other
// sort order is passed straight through — the store already orders by that
// column. Ties are broken by updated_at descending.
func (s *Service) Search(ctx context.Context, filter model.SearchFilter, now time.Time) ([]model.Discovery, error) {
	if filter.SortBy == model.SortRelevance && strings.TrimSpace(filter.Query) == "" {
		return nil, fmt.Errorf("knowledge: sort_by=relevance requires a query")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	if filter.SortBy != model.SortRelevance {
		fetch := filter
		fetch.Limit = limit
		return s.store.SearchDiscoveries(ctx, fetch)
	}

	widened := filter
	widened.Limit = limit * relevanceCandidatePool
	if widened.Limit > maxRelevanceFetch {
		widened.Limit = maxRelevanceFetch
	}

	candidates, err := s.store.SearchDiscoveries(ctx, widened)
	if err != nil {
		return nil, err
	}

	return rankByRelevance(candidates, filter, now, limit), nil
}

type scoredDiscovery struct {
	discovery model.Discovery
	score     float64
}

// rankByRelevance re-scores candidates by textMatch(query) * recencyDecay *
// tagOverlapBoost, sorts descending, breaks ties by UpdatedAt descending,
// and truncates to limit.
func rankByRelevance(candidates []model.Discovery, filter model.SearchFilter, now time.Time, limit int) []model.Discovery {
	terms := queryTerms(filter.Query)
	scored := make([]scoredDiscovery, 0, len(candidates))
	for _, d := range candidates {
		match := textMatch(d, terms)
		if match == 0 {
			continue
		}
		score := match * recencyDecay(d.UpdatedAt, now) * tagOverlapBoost(d.Tags, filter.Tags)
		scored = append(scored, scoredDiscovery{discovery: d, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].discovery.UpdatedAt.After(scored[j].discovery.UpdatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	out := make([]model.Discovery, len(scored))
	for i, sd := range scored {
		out[i] = sd.discovery
	}
	return out
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// textMatch is the fraction of query terms present in the discovery's
// summary and details, case-insensitively.
func textMatch(d model.Discovery, terms []string) float64 {
	if len(terms) == 0 {
		return 1
	}
	text := strings.ToLower(d.Summary + " " + d.Details)
	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// recencyDecay is an exponential half-life decay on a discovery's last
// update; a discovery updated right now scores 1.0, one a half-life old
// scores 0.5.
func recencyDecay(updatedAt, now time.Time) float64 {
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays <= 0 {
		return 1
	}
	return halfLifeDecay(ageDays, recencyHalfLifeDays)
}

func halfLifeDecay(age, halfLife float64) float64 {
	if halfLife <= 0 {
		return 1
	}
	return math.Pow(2, -age/halfLife)
}

// tagOverlapBoost rewards discoveries sharing tags with the filter's
// requested tags; with no requested tags every candidate gets the same
// neutral boost.
func tagOverlapBoost(tags, wanted []string) float64 {
	if len(wanted) == 0 {
		return 1
	}
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	overlap := 0
	for _, w := range wanted {
		if set[w] {
			overlap++
		}
	}
	fraction := float64(overlap) / float64(len(wanted))
	return 0.7 + 0.3*fraction
}
