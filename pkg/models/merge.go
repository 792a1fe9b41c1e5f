package models

import "time"

// MergeEdge points a deprecated team at its canonical team. One target per
// source; targets are roots when written.
type MergeEdge struct {
	DeprecatedTeamID string    `json:"deprecated_team_id" db:"deprecated_team_id"`
	CanonicalTeamID  string    `json:"canonical_team_id" db:"canonical_team_id"`
	CreatedBy        string    `json:"created_by" db:"created_by"`
	Reason           string    `json:"reason" db:"reason"`
	Confidence       *float64  `json:"confidence,omitempty" db:"confidence"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// RecommendationTier says what should happen to a suggestion
type RecommendationTier string

const (
	// RecommendationAutoMerge may be applied without a human
	RecommendationAutoMerge RecommendationTier = "auto_merge"
	// RecommendationReview needs a human approval
	RecommendationReview RecommendationTier = "review"
)

// SignalBreakdown holds the raw per-signal values (before weighting)
type SignalBreakdown struct {
	OpponentOverlap   float64 `json:"opponent_overlap"`
	ScheduleAlignment float64 `json:"schedule_alignment"`
	NameSimilarity    float64 `json:"name_similarity"`
	Geography         float64 `json:"geography"`
	Performance       float64 `json:"performance"`
}

// MergeSuggestion is a transient duplicate candidate. It is published and
// reported, never stored as state.
type MergeSuggestion struct {
	TeamAID          string             `json:"team_a_id"`
	TeamBID          string             `json:"team_b_id"`
	Confidence       float64            `json:"confidence"`
	Signals          SignalBreakdown    `json:"signals"`
	Tier             RecommendationTier `json:"tier"`
	CanonicalTeamID  string             `json:"canonical_team_id"`
	DeprecatedTeamID string             `json:"deprecated_team_id"`
	Cohort           string             `json:"cohort"`
}

// ApplyMergeRequest is a human-approved merge
type ApplyMergeRequest struct {
	DeprecatedTeamID string   `json:"deprecated_team_id" validate:"required,uuid"`
	CanonicalTeamID  string   `json:"canonical_team_id" validate:"required,uuid,nefield=DeprecatedTeamID"`
	Reason           string   `json:"reason" validate:"required"`
	CreatedBy        string   `json:"created_by" validate:"required"`
	Confidence       *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}
