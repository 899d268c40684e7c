package model

import (
	"time"

	"github.com/google/uuid"
)

// IdentityStatus is the lifecycle status of an agent identity.
type IdentityStatus string

const (
	StatusActive       IdentityStatus = "active"
	StatusPaused       IdentityStatus = "paused"
	StatusArchived     IdentityStatus = "archived"
	StatusDeleted      IdentityStatus = "deleted"
	StatusWaitingInput IdentityStatus = "waiting_input"
	StatusModerate     IdentityStatus = "moderate"
)

// Role is the RBAC role assigned to an identity. Distinct from IdentityStatus.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleOperator Role = "operator"
	RoleReader   Role = "reader"
)

// Identity is a stable per-agent record. AgentUUID is immutable once assigned;
// AgentID, DisplayName and Label are mutable (DisplayName settable once).
type Identity struct {
	AgentUUID      uuid.UUID      `json:"agent_uuid"`
	AgentID        string         `json:"agent_id"`
	DisplayName    *string        `json:"display_name,omitempty"`
	Label          *string        `json:"label,omitempty"`
	Role           Role           `json:"role"`
	Status         IdentityStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ParentAgentID  *uuid.UUID     `json:"parent_agent_id,omitempty"`
	SpawnReason    *string        `json:"spawn_reason,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	PausedAt       *time.Time     `json:"paused_at,omitempty"`
}

// Session binds an opaque transport session key to one identity.
type Session struct {
	SessionID  string         `json:"session_id"`
	IdentityID uuid.UUID      `json:"identity_id"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
	ExpiresAt  time.Time      `json:"expires_at"`
	IsActive   bool           `json:"is_active"`
	ClientType string         `json:"client_type,omitempty"`
	ClientInfo map[string]any `json:"client_info,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the session is past its inactivity window as of now.
func (s Session) Expired(now time.Time) bool {
	return !s.IsActive || now.After(s.ExpiresAt)
}

// LifecycleEvent is an append-only note on an identity's history (status
// changes, recoveries, dialectic resolutions).
type LifecycleEvent struct {
	ID         uuid.UUID      `json:"id"`
	IdentityID uuid.UUID      `json:"identity_id"`
	Kind       string         `json:"kind"`
	Detail     string         `json:"detail"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
