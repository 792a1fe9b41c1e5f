package models

import "time"

// ReviewStatus is the human review state of an alias or queue entry
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// MatchMethod records how an alias was established
type MatchMethod string

const (
	MatchMethodDirect    MatchMethod = "direct"
	MatchMethodManual    MatchMethod = "manual"
	MatchMethodFuzzyAuto MatchMethod = "fuzzy-auto"
	MatchMethodMigration MatchMethod = "migration"
)

// ExternalIdentifier maps a provider-scoped key to a team. Unique on
// (provider, external_id).
type ExternalIdentifier struct {
	Provider     string       `json:"provider" db:"provider"`
	ExternalID   string       `json:"external_id" db:"external_id"`
	TeamID       string       `json:"team_id" db:"team_id"`
	Confidence   float64      `json:"confidence" db:"confidence"`
	ReviewStatus ReviewStatus `json:"review_status" db:"review_status"`
	MatchMethod  MatchMethod  `json:"match_method" db:"match_method"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// IsLive reports whether the alias is a mapping that must not be silently
// replaced. Rejected aliases are not.
func (e ExternalIdentifier) IsLive() bool {
	return e.ReviewStatus != ReviewStatusRejected
}
