package events

import (
	"time"

	"github.com/Ramsey-B/thistle/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Resolution events
	EventTypeTeamResolved  EventType = "team.resolved"
	EventTypeTeamCreated   EventType = "team.created"
	EventTypeReviewQueued  EventType = "review.queued"
	EventTypeReviewDecided EventType = "review.decided"

	// Merge events
	EventTypeMergeSuggested EventType = "merge.suggested"
	EventTypeMergeApplied   EventType = "merge.applied"

	// Resolver events
	EventTypeResolverVersionChanged EventType = "resolver.version_changed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// TeamResolvedEvent reports the outcome of resolving one ingest record
type TeamResolvedEvent struct {
	BaseEvent
	Provider   string  `json:"provider"`
	ExternalID string  `json:"external_id"`
	TeamID     string  `json:"team_id,omitempty"`
	Decision   string  `json:"decision"`
	Tier       string  `json:"tier,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// TeamCreatedEvent is emitted when an unmatched import creates a team
type TeamCreatedEvent struct {
	BaseEvent
	Team       models.Team `json:"team"`
	Provider   string      `json:"provider"`
	ExternalID string      `json:"external_id"`
}

// ReviewEvent is emitted when an entry is queued or decided
type ReviewEvent struct {
	BaseEvent
	Entry models.ReviewQueueEntry `json:"entry"`
}

// MergeSuggestedEvent carries a suggestion for human approval
type MergeSuggestedEvent struct {
	BaseEvent
	Suggestion models.MergeSuggestion `json:"suggestion"`
}

// MergeAppliedEvent is emitted after an edge is written
type MergeAppliedEvent struct {
	BaseEvent
	Edge models.MergeEdge `json:"edge"`
	Auto bool             `json:"auto"`
}

// ResolverVersionChangedEvent tells consumers to drop caches keyed by the
// previous version.
type ResolverVersionChangedEvent struct {
	BaseEvent
	PreviousVersion string `json:"previous_version"`
	Version         string `json:"version"`
	Edges           int    `json:"edges"`
}
