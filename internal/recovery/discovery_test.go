package recovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

func TestBuildRecoveryDiscovery_TagsAndSummary(t *testing.T) {
	agentID := uuid.New()
	now := time.Unix(1000, 0)
	d := BuildRecoveryDiscovery(agentID, "quick_resume", "metrics within band", now)
	assert.Contains(t, d.Summary, agentID.String())
	assert.Contains(t, d.Summary, "quick_resume")
	assert.Equal(t, model.DiscoveryActive, d.Status)
	assert.Contains(t, d.Tags, "recovery")
	assert.Contains(t, d.Tags, "quick_resume")
}

func TestBuildLifecycleEvent_SetsFields(t *testing.T) {
	identityID := uuid.New()
	now := time.Unix(1000, 0)
	e := BuildLifecycleEvent(identityID, "recovered", "detail text", now)
	assert.Equal(t, identityID, e.IdentityID)
	assert.Equal(t, "recovered", e.Kind)
	assert.Equal(t, "detail text", e.Detail)
	assert.Equal(t, now, e.CreatedAt)
}
