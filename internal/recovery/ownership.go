package recovery

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnershipError is returned when the caller's session-bound identity
// doesn't match the agent targeted by a recovery request.
type OwnershipError struct {
	SessionIdentity uuid.UUID
	TargetAgent     uuid.UUID
}

func (e OwnershipError) Error() string {
	return fmt.Sprintf("recovery: session identity %s may not recover agent %s", e.SessionIdentity, e.TargetAgent)
}

// VerifyOwnership enforces that a recovery request only ever targets the
// agent bound to the caller's own session — quick resume and self-recovery
// review are both single-agent, self-service operations, never a way to
// recover a peer.
func VerifyOwnership(sessionIdentity, targetAgent uuid.UUID) error {
	if sessionIdentity != targetAgent {
		return OwnershipError{SessionIdentity: sessionIdentity, TargetAgent: targetAgent}
	}
	return nil
}
