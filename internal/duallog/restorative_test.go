package duallog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestorativeMonitor_NoTriggerBelowThresholds(t *testing.T) {
	m := NewRestorativeMonitor()
	now := time.Unix(0, 0)

	for i := 0; i < 5; i++ {
		m.Record(now.Add(time.Duration(i)*time.Second), 0.01)
	}

	needs, cooldown := m.Evaluate(now.Add(6 * time.Second))
	assert.False(t, needs)
	assert.Zero(t, cooldown)
}

func TestRestorativeMonitor_ActivityThresholdTriggers(t *testing.T) {
	m := NewRestorativeMonitor()
	now := time.Unix(0, 0)

	for i := 0; i < 16; i++ {
		m.Record(now.Add(time.Duration(i)*time.Second), 0)
	}

	needs, cooldown := m.Evaluate(now.Add(20 * time.Second))
	require.True(t, needs)
	assert.Equal(t, 35*time.Second, cooldown) // base 30s + 5s*(16-15)
}

func TestRestorativeMonitor_DivergenceThresholdTriggers(t *testing.T) {
	m := NewRestorativeMonitor()
	now := time.Unix(0, 0)

	for i := 0; i < 5; i++ {
		m.Record(now.Add(time.Duration(i)*time.Second), 0.1) // sum 0.5 > 0.4
	}

	needs, cooldown := m.Evaluate(now.Add(10 * time.Second))
	require.True(t, needs)
	assert.Equal(t, 40*time.Second, cooldown) // base 30s + 100s*0.1
}

func TestRestorativeMonitor_CooldownCappedAtMax(t *testing.T) {
	m := NewRestorativeMonitor()
	now := time.Unix(0, 0)

	for i := 0; i < 100; i++ {
		m.Record(now.Add(time.Duration(i)*time.Millisecond), 0)
	}

	needs, cooldown := m.Evaluate(now.Add(200 * time.Millisecond))
	require.True(t, needs)
	assert.Equal(t, maxCooldown, cooldown)
}

func TestRestorativeMonitor_PruneDropsEntriesOutsideWindow(t *testing.T) {
	m := NewRestorativeMonitor()
	now := time.Unix(0, 0)

	for i := 0; i < 16; i++ {
		m.Record(now.Add(time.Duration(i)*time.Second), 0)
	}

	// Past the 5-minute window, the old burst no longer counts.
	needs, cooldown := m.Evaluate(now.Add(6 * time.Minute))
	assert.False(t, needs)
	assert.Zero(t, cooldown)
}
