package models

import "time"

// ReviewPriority orders the human review queue
type ReviewPriority string

const (
	ReviewPriorityMedium ReviewPriority = "medium"
	ReviewPriorityLow    ReviewPriority = "low"
)

// ReviewQueueEntry is an ambiguous match waiting for a human decision
type ReviewQueueEntry struct {
	ID             string         `json:"id" db:"id"`
	Provider       string         `json:"provider" db:"provider"`
	ExternalID     string         `json:"external_id" db:"external_id"`
	ProposedTeamID string         `json:"proposed_team_id" db:"proposed_team_id"`
	Confidence     float64        `json:"confidence" db:"confidence"`
	RawName        string         `json:"raw_name" db:"raw_name"`
	Priority       ReviewPriority `json:"priority" db:"priority"`
	Status         ReviewStatus   `json:"status" db:"status"`
	DecidedBy      *string        `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// ReviewDecisionRequest is the body of approve/reject calls
type ReviewDecisionRequest struct {
	DecidedBy string `json:"decided_by" validate:"required"`
}
