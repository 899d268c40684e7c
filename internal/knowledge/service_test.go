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

func newDiscovery(id uuid.UUID, summary string) model.Discovery {
	return model.Discovery{
		ID:        id,
		AgentID:   "agent-1",
		Type:      model.DiscoveryInsight,
		Severity:  model.SeverityLow,
		Status:    model.DiscoveryActive,
		CreatedAt: time.Unix(0, 0),
		UpdatedAt: time.Unix(0, 0),
		Summary:   summary,
	}
}

func TestStoreDiscoveries_StoresAllWhenNoneFail(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	d1 := newDiscovery(uuid.New(), "first")
	d2 := newDiscovery(uuid.New(), "second")

	stored, err := svc.StoreDiscoveries(context.Background(), []model.Discovery{d1, d2})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Len(t, store.discoveries, 2)
}

func TestGetDiscovery_FollowsResponseAndRelatedChain(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	root := newDiscovery(uuid.New(), "root")
	child := newDiscovery(uuid.New(), "child")
	grandchild := newDiscovery(uuid.New(), "grandchild")
	store.discoveries[root.ID] = root
	store.discoveries[child.ID] = child
	store.discoveries[grandchild.ID] = grandchild

	// child responds to root
	store.edges = append(store.edges, model.Edge{Type: model.EdgeResponseTo, SourceID: child.ID.String(), TargetID: root.ID.String()})
	// grandchild is related to child
	store.edges = append(store.edges, model.Edge{Type: model.EdgeRelatedTo, SourceID: grandchild.ID.String(), TargetID: child.ID.String()})

	result, err := svc.GetDiscovery(ctx, root.ID, ChainOptions{FollowChain: true, MaxDepth: 3})
	require.NoError(t, err)
	require.Len(t, result.Chain, 2)
	assert.Equal(t, child.ID, result.Chain[0].ID)
	assert.Equal(t, grandchild.ID, result.Chain[1].ID)
	assert.Empty(t, result.Provenance)
}

func TestGetDiscovery_DepthBoundStopsChainEarly(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	root := newDiscovery(uuid.New(), "root")
	child := newDiscovery(uuid.New(), "child")
	grandchild := newDiscovery(uuid.New(), "grandchild")
	store.discoveries[root.ID] = root
	store.discoveries[child.ID] = child
	store.discoveries[grandchild.ID] = grandchild

	store.edges = append(store.edges, model.Edge{Type: model.EdgeResponseTo, SourceID: child.ID.String(), TargetID: root.ID.String()})
	store.edges = append(store.edges, model.Edge{Type: model.EdgeRelatedTo, SourceID: grandchild.ID.String(), TargetID: child.ID.String()})

	result, err := svc.GetDiscovery(ctx, root.ID, ChainOptions{FollowChain: true, MaxDepth: 1})
	require.NoError(t, err)
	require.Len(t, result.Chain, 1, "depth 1 reaches only the immediate child")
	assert.Equal(t, child.ID, result.Chain[0].ID)
}

func TestGetDiscovery_ProvenanceSkipsNonUUIDNodesWithoutError(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	root := newDiscovery(uuid.New(), "root")
	store.discoveries[root.ID] = root
	// an agent "wrote" this discovery; the agent id isn't a discovery uuid
	store.edges = append(store.edges, model.Edge{Type: model.EdgeWrote, SourceID: "agent-123", TargetID: root.ID.String()})

	result, err := svc.GetDiscovery(ctx, root.ID, ChainOptions{IncludeProvenance: true})
	require.NoError(t, err)
	assert.Empty(t, result.Provenance)
}

func TestUpdateDiscovery_AppendModeAddsToExistingDetails(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	d := newDiscovery(uuid.New(), "root")
	d.Details = "first line"
	store.discoveries[d.ID] = d

	appended := "second line"
	updated, err := svc.UpdateDiscovery(ctx, d.ID, DiscoveryPatch{DetailsAppend: &appended})
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", updated.Details)
}

func TestUpdateDiscovery_ReplaceWinsOverAppendWhenBothSet(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	d := newDiscovery(uuid.New(), "root")
	d.Details = "old"
	store.discoveries[d.ID] = d

	replacement := "replaced"
	appended := "ignored"
	updated, err := svc.UpdateDiscovery(ctx, d.ID, DiscoveryPatch{Details: &replacement, DetailsAppend: &appended})
	require.NoError(t, err)
	assert.Equal(t, "replaced", updated.Details)
}

func TestUpdateDiscovery_AddsReferencesFilesWithoutDuplicates(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	d := newDiscovery(uuid.New(), "root")
	d.ReferencesFiles = []string{"a.go"}
	store.discoveries[d.ID] = d

	updated, err := svc.UpdateDiscovery(ctx, d.ID, DiscoveryPatch{AddReferencesFiles: []string{"a.go", "b.go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, updated.ReferencesFiles)
}

func TestUpdateStatus_ActiveToResolvedSetsResolvedAt(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	d := newDiscovery(uuid.New(), "root")
	store.discoveries[d.ID] = d

	now := time.Unix(1000, 0)
	updated, err := svc.UpdateStatus(ctx, d.ID, model.DiscoveryResolved, nil, now)
	require.NoError(t, err)
	assert.Equal(t, model.DiscoveryResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)
	assert.True(t, updated.ResolvedAt.Equal(now))
}

func TestUpdateStatus_ResolvedToActiveIsRejected(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	d := newDiscovery(uuid.New(), "root")
	d.Status = model.DiscoveryResolved
	store.discoveries[d.ID] = d

	_, err := svc.UpdateStatus(ctx, d.ID, model.DiscoveryActive, nil, time.Unix(0, 0))
	assert.Error(t, err)
}

func TestUpdateStatus_SupersededRequiresPointer(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	d := newDiscovery(uuid.New(), "root")
	store.discoveries[d.ID] = d

	_, err := svc.UpdateStatus(ctx, d.ID, model.DiscoverySuperseded, nil, time.Unix(0, 0))
	assert.Error(t, err)

	other := uuid.New()
	updated, err := svc.UpdateStatus(ctx, d.ID, model.DiscoverySuperseded, &other, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, model.DiscoverySuperseded, updated.Status)
	require.NotNil(t, updated.SupersededBy)
	assert.Equal(t, other, *updated.SupersededBy)
}

func TestAddTag_DoesNotDuplicate(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	d := newDiscovery(uuid.New(), "root")
	d.Tags = []string{"infra"}
	store.discoveries[d.ID] = d

	updated, err := svc.AddTag(ctx, d.ID, "infra")
	require.NoError(t, err)
	assert.Equal(t, []string{"infra"}, updated.Tags)

	updated, err = svc.AddTag(ctx, d.ID, "perf")
	require.NoError(t, err)
	assert.Equal(t, []string{"infra", "perf"}, updated.Tags)
}

func TestLinkRelated_WrapsAddEdge(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	src, dst := uuid.New().String(), uuid.New().String()
	edge, err := svc.LinkRelated(ctx, src, dst, model.EdgeRelatedTo)
	require.NoError(t, err)
	assert.Equal(t, src, edge.SourceID)
	assert.Equal(t, dst, edge.TargetID)
	assert.Len(t, store.edges, 1)
}
