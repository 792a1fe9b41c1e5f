package resolver

import (
	"github.com/Ramsey-B/thistle/pkg/features"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/nameparser"
)

// Decision is the terminal state of one resolution.
type Decision string

const (
	DecisionAccept        Decision = "accept"
	DecisionReview        Decision = "review"
	DecisionReject        Decision = "reject"
	DecisionConflict      Decision = "conflict"
	DecisionPendingReview Decision = "pending_review"
)

// Tier is the resolution tier that produced the outcome.
type Tier int

const (
	TierNone Tier = iota
	TierDirect
	TierCurated
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierCurated:
		return "curated"
	case TierFuzzy:
		return "fuzzy"
	}
	return "none"
}

// Reasons attached to outcomes. Consumers branch on these, so "vetoed",
// "no candidate" and "pending review" stay distinct.
const (
	ReasonDirectAlias          = "direct alias"
	ReasonCuratedAlias         = "curated alias"
	ReasonFuzzyMatch           = "fuzzy match"
	ReasonLowConfidence        = "low confidence"
	ReasonStructurallyDistinct = "structurally distinct"
	ReasonNoCandidate          = "no candidate"
	ReasonBelowThreshold       = "below threshold"
	ReasonUnparseable          = "unparseable"
	ReasonPendingReview        = "pending review"
	ReasonAliasConflict        = "alias conflict"
)

// Outcome is the result of resolving one ingest record.
type Outcome struct {
	Decision   Decision
	Tier       Tier
	TeamID     string
	Confidence float64
	Reason     string
	Priority   models.ReviewPriority
	Veto       *features.Veto
	Candidates int
	Vetoed     int
	Parsed     nameparser.ParsedName
	Cohort     models.Cohort // set by the fuzzy tier
}

// CreatesTeam reports whether the caller should create a new team for the
// record. Unparseable ids never create teams.
func (o Outcome) CreatesTeam() bool {
	return o.Decision == DecisionReject && o.Reason != ReasonUnparseable
}

// Resolved reports whether the outcome maps the record to a team now.
func (o Outcome) Resolved() bool {
	return o.Decision == DecisionAccept
}
