package model

import (
	"time"

	"github.com/google/uuid"
)

// DiscoveryType enumerates the knowledge-graph entry categories.
type DiscoveryType string

const (
	DiscoveryBugFound              DiscoveryType = "bug_found"
	DiscoveryInsight                DiscoveryType = "insight"
	DiscoveryPattern                DiscoveryType = "pattern"
	DiscoveryImprovement            DiscoveryType = "improvement"
	DiscoveryQuestion                DiscoveryType = "question"
	DiscoveryNote                    DiscoveryType = "note"
	DiscoveryArchitecturalDecision   DiscoveryType = "architectural_decision"
)

// Severity enumerates discovery severities.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DiscoveryStatus enumerates discovery lifecycle states.
type DiscoveryStatus string

const (
	DiscoveryActive     DiscoveryStatus = "active"
	DiscoveryOpen       DiscoveryStatus = "open"
	DiscoveryResolved   DiscoveryStatus = "resolved"
	DiscoverySuperseded DiscoveryStatus = "superseded"
	DiscoveryArchived   DiscoveryStatus = "archived"
)

// Discovery is an atom of the knowledge graph.
type Discovery struct {
	ID                uuid.UUID       `json:"id"`
	AgentID           string          `json:"agent_id"`
	Type              DiscoveryType   `json:"type"`
	Severity          Severity        `json:"severity"`
	Status            DiscoveryStatus `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	Summary           string          `json:"summary"`
	Details           string          `json:"details"`
	Tags              []string        `json:"tags"`
	Confidence        *float64        `json:"confidence,omitempty"`
	ReferencesFiles   []string        `json:"references_files,omitempty"`
	Provenance        *string         `json:"provenance,omitempty"`
	ProvenanceChain   []string        `json:"provenance_chain,omitempty"`
	SupersededBy      *uuid.UUID      `json:"superseded_by,omitempty"`
}

// EdgeType enumerates typed directed edges between knowledge-graph nodes.
type EdgeType string

const (
	EdgeResponseTo     EdgeType = "response_to"
	EdgeRelatedTo      EdgeType = "related_to"
	EdgeHasTag         EdgeType = "has_tag"
	EdgeSpawned        EdgeType = "spawned"
	EdgeAboutDiscovery EdgeType = "about_discovery"
	EdgeHasMessage     EdgeType = "has_message"
	EdgePausedAgent    EdgeType = "paused_agent"
	EdgeReviewer       EdgeType = "reviewer"
	EdgeWrote          EdgeType = "wrote"
)

// Edge is a typed directed edge in the knowledge graph. Never deleted, only
// superseded.
type Edge struct {
	ID           uuid.UUID `json:"id"`
	Type         EdgeType  `json:"type"`
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	ResponseType string    `json:"response_type,omitempty"` // only meaningful for EdgeResponseTo
	CreatedAt    time.Time `json:"created_at"`
}

// SearchSort enumerates knowledge-graph search ordering options.
type SearchSort string

const (
	SortCreatedAt    SearchSort = "created_at"
	SortRelevance    SearchSort = "relevance"
	SortScore        SearchSort = "score"
	SortRelatedCount SearchSort = "related_count"
)

// SearchFilter describes a discovery search request.
type SearchFilter struct {
	Tags       []string
	Types      []DiscoveryType
	Severities []Severity
	Statuses   []DiscoveryStatus
	AgentID    string
	Since      *time.Time
	Until      *time.Time
	Query      string
	SortBy     SearchSort
	Limit      int
}
