package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/storage"
)

// fakeStore implements storage.Store for knowledge-package tests. It
// embeds the interface so unimplemented methods remain satisfied (and
// would panic on a nil-pointer call if a test ever reached one), while
// overriding only the knowledge-graph surface this package actually uses.
type fakeStore struct {
	storage.Store

	discoveries map[uuid.UUID]model.Discovery
	edges       []model.Edge

	searchResults []model.Discovery
	lastFilter    model.SearchFilter

	staleIDs    []uuid.UUID
	staleCalled bool
	staleDryRun bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{discoveries: map[uuid.UUID]model.Discovery{}}
}

func (f *fakeStore) UpsertDiscovery(_ context.Context, d model.Discovery) (model.Discovery, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	f.discoveries[d.ID] = d
	return d, nil
}

func (f *fakeStore) GetDiscovery(_ context.Context, id uuid.UUID) (model.Discovery, error) {
	d, ok := f.discoveries[id]
	if !ok {
		return model.Discovery{}, fmt.Errorf("fakeStore: discovery %s: %w", id, storage.ErrNotFound)
	}
	return d, nil
}

func (f *fakeStore) SearchDiscoveries(_ context.Context, filter model.SearchFilter) ([]model.Discovery, error) {
	f.lastFilter = filter
	return f.searchResults, nil
}

func (f *fakeStore) AddEdge(_ context.Context, e model.Edge) (model.Edge, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	f.edges = append(f.edges, e)
	return e, nil
}

func (f *fakeStore) ListEdges(_ context.Context, nodeID string) ([]model.Edge, error) {
	var out []model.Edge
	for _, e := range f.edges {
		if e.SourceID == nodeID || e.TargetID == nodeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteStaleDiscoveries(_ context.Context, _ time.Time, dryRun bool) ([]uuid.UUID, error) {
	f.staleCalled = true
	f.staleDryRun = dryRun
	return f.staleIDs, nil
}
