package recovery

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// BuildRecoveryDiscovery builds the audit-trail discovery record a
// successful recovery appends, for either tier. The caller stores it via
// knowledge.Service.StoreDiscovery.
func BuildRecoveryDiscovery(agentID uuid.UUID, kind, reason string, now time.Time) model.Discovery {
	summary := fmt.Sprintf("agent %s recovered via %s", agentID, kind)
	return model.Discovery{
		ID:        uuid.New(),
		AgentID:   agentID.String(),
		Type:      model.DiscoveryNote,
		Severity:  model.SeverityLow,
		Status:    model.DiscoveryActive,
		CreatedAt: now,
		UpdatedAt: now,
		Summary:   summary,
		Details:   reason,
		Tags:      []string{"recovery", kind},
	}
}

// BuildLifecycleEvent builds the append-only identity history note a
// successful recovery records.
func BuildLifecycleEvent(identityID uuid.UUID, kind, detail string, now time.Time) model.LifecycleEvent {
	return model.LifecycleEvent{
		ID:         uuid.New(),
		IdentityID: identityID,
		Kind:       kind,
		Detail:     detail,
		CreatedAt:  now,
	}
}
