// Package knowledge implements the discovery/edge/tag knowledge graph:
// storing and searching discoveries, following their response/related/
// provenance chains, field-level updates, and lifecycle cleanup of stale
// records.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// Service is the knowledge graph's operation surface over a storage.Store.
// It holds no state of its own besides an optional semantic Searcher.
type Service struct {
	store    storage.Store
	searcher Searcher // optional; nil degrades to lexical-only search
}

// NewService builds a Service over store. searcher may be nil.
func NewService(store storage.Store, searcher Searcher) *Service {
	return &Service{store: store, searcher: searcher}
}

// StoreDiscovery inserts or updates a single discovery.
func (s *Service) StoreDiscovery(ctx context.Context, d model.Discovery) (model.Discovery, error) {
	return s.store.UpsertDiscovery(ctx, d)
}

// StoreDiscoveries inserts or updates a batch, stopping at the first error.
func (s *Service) StoreDiscoveries(ctx context.Context, ds []model.Discovery) ([]model.Discovery, error) {
	out := make([]model.Discovery, 0, len(ds))
	for _, d := range ds {
		stored, err := s.store.UpsertDiscovery(ctx, d)
		if err != nil {
			return out, fmt.Errorf("knowledge: batch store discovery: %w", err)
		}
		out = append(out, stored)
	}
	return out, nil
}

// ChainOptions controls how far GetDiscovery follows graph edges.
type ChainOptions struct {
	FollowChain       bool // walk response_to/related_to
	IncludeProvenance bool // walk spawned/wrote lineage
	MaxDepth          int  // default 3 when FollowChain or IncludeProvenance is set
}

const defaultChainDepth = 3

// DiscoveryWithChain bundles a discovery with its optionally-followed chain
// and provenance lineage, neither of which includes the discovery itself.
type DiscoveryWithChain struct {
	Discovery  model.Discovery
	Chain      []model.Discovery
	Provenance []model.Discovery
}

// GetDiscovery fetches one discovery and, per opts, follows its
// response_to/related_to chain and/or spawned/wrote provenance lineage up
// to a depth bound. Cycles are broken by a visited-id set.
func (s *Service) GetDiscovery(ctx context.Context, id uuid.UUID, opts ChainOptions) (DiscoveryWithChain, error) {
	d, err := s.store.GetDiscovery(ctx, id)
	if err != nil {
		return DiscoveryWithChain{}, err
	}

	out := DiscoveryWithChain{Discovery: d}
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = defaultChainDepth
	}

	if opts.FollowChain {
		chain, err := s.walkEdges(ctx, id.String(), depth, model.EdgeResponseTo, model.EdgeRelatedTo)
		if err != nil {
			return DiscoveryWithChain{}, err
		}
		out.Chain = chain
	}

	if opts.IncludeProvenance {
		provenance, err := s.walkEdges(ctx, id.String(), depth, model.EdgeSpawned, model.EdgeWrote)
		if err != nil {
			return DiscoveryWithChain{}, err
		}
		out.Provenance = provenance
	}

	return out, nil
}

// walkEdges breadth-first follows edges of the given types out from
// startNode, hydrating each newly-visited discovery node, until depth is
// exhausted or no new nodes are reached. Non-discovery target/source ids
// (e.g. identities, sessions) are silently skipped — GetDiscovery only
// errors on a store failure, never on an unparseable id along the way.
func (s *Service) walkEdges(ctx context.Context, startNode string, depth int, types ...model.EdgeType) ([]model.Discovery, error) {
	wanted := make(map[model.EdgeType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	visited := map[string]bool{startNode: true}
	frontier := []string{startNode}
	var out []model.Discovery

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []string
		for _, node := range frontier {
			edges, err := s.store.ListEdges(ctx, node)
			if err != nil {
				return nil, fmt.Errorf("knowledge: list edges for %s: %w", node, err)
			}
			for _, e := range edges {
				if !wanted[e.Type] {
					continue
				}
				other := e.TargetID
				if other == node {
					other = e.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true

				id, err := uuid.Parse(other)
				if err != nil {
					continue // not a discovery node
				}
				disc, err := s.store.GetDiscovery(ctx, id)
				if err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						continue
					}
					return nil, fmt.Errorf("knowledge: hydrate chain node %s: %w", other, err)
				}
				out = append(out, disc)
				next = append(next, other)
			}
		}
		frontier = next
	}

	return out, nil
}

// DiscoveryPatch is a field-level update for UpdateDiscovery. Nil fields are
// left untouched. DetailsAppend and Details are mutually exclusive; when
// both are set, Details (replace) wins.
type DiscoveryPatch struct {
	Summary            *string
	Details            *string
	DetailsAppend      *string
	Severity           *model.Severity
	Confidence         *float64
	AddReferencesFiles []string
}

// UpdateDiscovery applies patch to the stored discovery and persists it.
func (s *Service) UpdateDiscovery(ctx context.Context, id uuid.UUID, patch DiscoveryPatch) (model.Discovery, error) {
	d, err := s.store.GetDiscovery(ctx, id)
	if err != nil {
		return model.Discovery{}, err
	}

	if patch.Summary != nil {
		d.Summary = *patch.Summary
	}
	switch {
	case patch.Details != nil:
		d.Details = *patch.Details
	case patch.DetailsAppend != nil:
		if d.Details != "" {
			d.Details += "\n" + *patch.DetailsAppend
		} else {
			d.Details = *patch.DetailsAppend
		}
	}
	if patch.Severity != nil {
		d.Severity = *patch.Severity
	}
	if patch.Confidence != nil {
		d.Confidence = patch.Confidence
	}
	if len(patch.AddReferencesFiles) > 0 {
		d.ReferencesFiles = appendUnique(d.ReferencesFiles, patch.AddReferencesFiles)
	}

	return s.store.UpsertDiscovery(ctx, d)
}

// statusTransitions enumerates the allowed next statuses for UpdateStatus.
// Superseded is reachable from any non-terminal status, an escape hatch for
// "this was answered by a different, later discovery" independent of where
// the original sat in its active/resolved/archived lifecycle.
var statusTransitions = map[model.DiscoveryStatus][]model.DiscoveryStatus{
	model.DiscoveryActive:     {model.DiscoveryResolved, model.DiscoveryArchived, model.DiscoverySuperseded},
	model.DiscoveryOpen:       {model.DiscoveryResolved, model.DiscoveryArchived, model.DiscoverySuperseded},
	model.DiscoveryResolved:   {model.DiscoveryArchived, model.DiscoverySuperseded},
	model.DiscoverySuperseded: {model.DiscoveryArchived},
}

// UpdateStatus transitions a discovery's lifecycle status, validating the
// transition and requiring supersededBy when moving to superseded.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next model.DiscoveryStatus, supersededBy *uuid.UUID, now time.Time) (model.Discovery, error) {
	d, err := s.store.GetDiscovery(ctx, id)
	if err != nil {
		return model.Discovery{}, err
	}

	if next == model.DiscoverySuperseded && supersededBy == nil {
		return model.Discovery{}, fmt.Errorf("knowledge: transition to superseded requires supersededBy")
	}

	allowed := statusTransitions[d.Status]
	ok := false
	for _, s := range allowed {
		if s == next {
			ok = true
			break
		}
	}
	if !ok {
		return model.Discovery{}, fmt.Errorf("knowledge: invalid status transition %s -> %s", d.Status, next)
	}

	d.Status = next
	if next == model.DiscoveryResolved {
		d.ResolvedAt = &now
	}
	if next == model.DiscoverySuperseded {
		d.SupersededBy = supersededBy
	}

	return s.store.UpsertDiscovery(ctx, d)
}

// AddTag appends tag to a discovery's tag set if not already present.
func (s *Service) AddTag(ctx context.Context, id uuid.UUID, tag string) (model.Discovery, error) {
	d, err := s.store.GetDiscovery(ctx, id)
	if err != nil {
		return model.Discovery{}, err
	}
	for _, t := range d.Tags {
		if t == tag {
			return d, nil
		}
	}
	d.Tags = append(d.Tags, tag)
	return s.store.UpsertDiscovery(ctx, d)
}

// LinkRelated records a typed directed edge between two knowledge-graph nodes.
func (s *Service) LinkRelated(ctx context.Context, sourceID, targetID string, edgeType model.EdgeType) (model.Edge, error) {
	return s.store.AddEdge(ctx, model.Edge{Type: edgeType, SourceID: sourceID, TargetID: targetID})
}

func appendUnique(existing []string, additions []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	out := existing
	for _, v := range additions {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}
