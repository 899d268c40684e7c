package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRWEL/unitares-sub004/internal/model"
	"github.com/CIRWEL/unitares-sub004/internal/scheduler"
)

type fakeDialecticStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]model.DialecticSession
}

func newFakeDialecticStore() *fakeDialecticStore {
	return &fakeDialecticStore{sessions: make(map[uuid.UUID]model.DialecticSession)}
}

func (f *fakeDialecticStore) ListStuckDialecticSessions(_ context.Context, olderThan time.Time) ([]model.DialecticSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DialecticSession
	for _, s := range f.sessions {
		if s.Status == model.DialecticActive && s.UpdatedAt.Before(olderThan) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeDialecticStore) UpsertDialecticSession(_ context.Context, s model.DialecticSession) (model.DialecticSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.SessionID] = s
	return s, nil
}

func TestScheduler_SweepsStuckDialecticSessionOnStart(t *testing.T) {
	store := newFakeDialecticStore()
	stale := model.DialecticSession{
		SessionID: uuid.New(),
		Phase:     model.PhaseThesis,
		Status:    model.DialecticActive,
		CreatedAt: time.Now().Add(-3 * time.Hour),
		UpdatedAt: time.Now().Add(-3 * time.Hour),
	}
	store.sessions[stale.SessionID] = stale

	s, err := scheduler.New(store, nil, nil, time.Hour,
		scheduler.WithDialecticSweepSpec("@every 20ms"))
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.sessions[stale.SessionID].Status == model.DialecticFailed
	}, time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, model.PhaseFailed, store.sessions[stale.SessionID].Phase)
}

func TestScheduler_LeavesFreshSessionUntouched(t *testing.T) {
	store := newFakeDialecticStore()
	fresh := model.DialecticSession{
		SessionID: uuid.New(),
		Phase:     model.PhaseThesis,
		Status:    model.DialecticActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	store.sessions[fresh.SessionID] = fresh

	s, err := scheduler.New(store, nil, nil, time.Hour,
		scheduler.WithDialecticSweepSpec("@every 20ms"))
	require.NoError(t, err)
	s.Start()
	time.Sleep(80 * time.Millisecond)
	s.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, model.DialecticActive, store.sessions[fresh.SessionID].Status)
}
