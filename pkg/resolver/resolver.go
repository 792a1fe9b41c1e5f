// Package resolver maps (provider, external id) pairs to canonical team ids
// through three escalating tiers: direct alias, curated alias, fuzzy match.
package resolver

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Ramsey-B/thistle/pkg/features"
	"github.com/Ramsey-B/thistle/pkg/matching"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/nameparser"
	"github.com/Ramsey-B/thistle/pkg/normalizers"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// AliasStore reads and writes ExternalIdentifier rows.
type AliasStore interface {
	// GetAlias returns nil, nil when the key is unknown.
	GetAlias(ctx context.Context, provider, externalID string) (*models.ExternalIdentifier, error)
	// UpsertAlias returns an *models.AliasConflictError when a live row for
	// the key points at a different team; that row is left unmodified.
	UpsertAlias(ctx context.Context, alias models.ExternalIdentifier) error
}

// TeamScanner pages through non-deprecated teams.
type TeamScanner interface {
	ScanTeams(ctx context.Context, filter models.TeamFilter) ([]models.Team, error)
}

// ReviewQueue receives ambiguous matches.
type ReviewQueue interface {
	Enqueue(ctx context.Context, entry models.ReviewQueueEntry) error
}

// Canonicalizer maps a possibly deprecated team id to its canonical id.
type Canonicalizer interface {
	Resolve(id string) string
}

// Config contains the fuzzy tier thresholds.
type Config struct {
	AutoAcceptThreshold   float64 // >= auto-accept (default: 0.95)
	HighBandThreshold     float64 // >= high band (default: 0.90)
	HighBandAutoAccept    bool    // auto-accept the high band instead of queueing it (default: true)
	ReviewMediumThreshold float64 // >= medium priority review (default: 0.80)
	ReviewLowThreshold    float64 // >= low priority review (default: 0.70)
	PageSize              int     // candidates per scan page (default: 500)
	MaxExternalIDLength   int     // longer ids are unparseable (default: 256)
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		AutoAcceptThreshold:   0.95,
		HighBandThreshold:     0.90,
		HighBandAutoAccept:    true,
		ReviewMediumThreshold: 0.80,
		ReviewLowThreshold:    0.70,
		PageSize:              500,
		MaxExternalIDLength:   256,
	}
}

// Resolver runs the tiered resolution.
type Resolver struct {
	log        ectologger.Logger
	aliases    AliasStore
	teams      TeamScanner
	queue      ReviewQueue
	canon      Canonicalizer
	parser     *nameparser.Parser
	extractor  *features.Extractor
	similarity *matching.SimilarityScorer
	score      func(a, b string, metaA, metaB matching.Metadata) float64
	clock      clockwork.Clock
	cfg        Config
}

// NewResolver creates a resolver. canon may be nil when no merges exist.
func NewResolver(
	log ectologger.Logger,
	aliases AliasStore,
	teams TeamScanner,
	queue ReviewQueue,
	canon Canonicalizer,
	parser *nameparser.Parser,
	clock clockwork.Clock,
	cfg Config,
) *Resolver {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.MaxExternalIDLength <= 0 {
		cfg.MaxExternalIDLength = DefaultConfig().MaxExternalIDLength
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	similarity := matching.NewSimilarityScorer(parser.Vocabulary())
	return &Resolver{
		log:        log,
		aliases:    aliases,
		teams:      teams,
		queue:      queue,
		canon:      canon,
		parser:     parser,
		extractor:  features.NewExtractor(parser),
		similarity: similarity,
		score:      similarity.Score,
		clock:      clock,
		cfg:        cfg,
	}
}

// Resolve maps one ingest record to a team. Errors are store failures only
// (wrapping models.ErrStoreUnavailable); every other result is an Outcome.
func (r *Resolver) Resolve(ctx context.Context, rec models.IngestRecord) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	provider := strings.TrimSpace(rec.Provider)
	externalID := normalizers.NormalizeExternalID(rec.ExternalID)

	log := r.log.WithContext(ctx).WithFields(map[string]any{
		"provider":    provider,
		"external_id": externalID,
	})

	if provider == "" || !r.parseableID(externalID) {
		log.Warn("Rejecting unparseable external id")
		return Outcome{Decision: DecisionReject, Reason: ReasonUnparseable}, nil
	}

	alias, err := r.aliases.GetAlias(ctx, provider, externalID)
	if err != nil {
		return Outcome{}, models.StoreUnavailable("get alias", err)
	}

	excluded := ""
	if alias != nil {
		switch alias.ReviewStatus {
		case models.ReviewStatusApproved:
			if alias.MatchMethod == models.MatchMethodDirect || alias.MatchMethod == models.MatchMethodMigration {
				return Outcome{
					Decision:   DecisionAccept,
					Tier:       TierDirect,
					TeamID:     r.canonical(alias.TeamID),
					Confidence: 1.0,
					Reason:     ReasonDirectAlias,
				}, nil
			}
			return Outcome{
				Decision:   DecisionAccept,
				Tier:       TierCurated,
				TeamID:     r.canonical(alias.TeamID),
				Confidence: alias.Confidence,
				Reason:     ReasonCuratedAlias,
			}, nil
		case models.ReviewStatusPending:
			return Outcome{
				Decision:   DecisionPendingReview,
				TeamID:     r.canonical(alias.TeamID),
				Confidence: alias.Confidence,
				Reason:     ReasonPendingReview,
			}, nil
		case models.ReviewStatusRejected:
			// A reviewer said no to this team; never propose it again.
			excluded = alias.TeamID
		}
	}

	return r.resolveFuzzy(ctx, log, rec, provider, externalID, excluded)
}

// =============================================================================
// TIER 3: FUZZY
// =============================================================================

type candidate struct {
	team  models.Team
	score float64
}

func (r *Resolver) resolveFuzzy(
	ctx context.Context,
	log ectologger.Logger,
	rec models.IngestRecord,
	provider, externalID, excluded string,
) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.resolveFuzzy")
	defer span.End()

	parsed := r.parser.Parse(rec.RawName, rec.ClubHint)
	if parsed.Partial {
		log.WithFields(map[string]any{
			"raw_name": rec.RawName,
			"identity": parsed.Identity,
		}).Info("Partial parse of team name")
	}

	cohort := r.cohortFor(rec, parsed)
	incoming := r.extractor.Extract(rec.RawName)
	clubHint := rec.ClubHint
	if clubHint == "" {
		clubHint = parsed.Club
	}
	meta := matching.Metadata{Club: clubHint, League: rec.League}

	out := Outcome{Tier: TierFuzzy, Parsed: parsed, Cohort: cohort}
	var best *candidate

	filter := models.TeamFilter{
		BirthYear: cohort.BirthYear,
		Gender:    cohort.Gender,
		Region:    cohort.Region,
		Limit:     r.cfg.PageSize,
	}
	for {
		page, err := r.teams.ScanTeams(ctx, filter)
		if err != nil {
			return Outcome{}, models.StoreUnavailable("scan teams", err)
		}

		for _, team := range page {
			if team.Deprecated || team.ID == excluded {
				continue
			}
			out.Candidates++

			// The veto runs before any score is computed.
			if veto := features.Compare(incoming, r.extractor.Extract(team.Name)); veto != nil {
				out.Vetoed++
				out.Veto = veto
				continue
			}

			if !parsed.SameSquad(r.parser.Parse(team.Name, team.ClubName)) {
				continue
			}

			score := r.score(rec.RawName, team.Name, meta, matching.Metadata{
				Club:   team.ClubName,
				League: team.LeagueName(),
			})
			if best == nil || score > best.score {
				best = &candidate{team: team, score: score}
			}
		}

		if len(page) < filter.Limit {
			break
		}
		filter.AfterID = page[len(page)-1].ID
	}

	log = log.WithFields(map[string]any{
		"cohort":     cohort.Key(),
		"candidates": out.Candidates,
		"vetoed":     out.Vetoed,
	})

	switch {
	case out.Candidates == 0:
		out.Decision, out.Reason = DecisionReject, ReasonNoCandidate
		log.Debug("No candidates in cohort")
		return out, nil
	case out.Vetoed == out.Candidates:
		out.Decision, out.Reason = DecisionReject, ReasonStructurallyDistinct
		log.WithField("veto", out.Veto.Reason()).Info("Every candidate vetoed")
		return out, nil
	case best == nil:
		out.Decision, out.Reason = DecisionReject, ReasonNoCandidate
		log.Debug("No candidate with a matching squad")
		return out, nil
	}

	out.Veto = nil
	out.TeamID = r.canonical(best.team.ID)
	out.Confidence = best.score
	log = log.WithFields(map[string]any{
		"team_id":    out.TeamID,
		"confidence": out.Confidence,
	})

	switch {
	case best.score >= r.cfg.AutoAcceptThreshold,
		best.score >= r.cfg.HighBandThreshold && r.cfg.HighBandAutoAccept:
		out.Decision, out.Reason = DecisionAccept, ReasonFuzzyMatch
		return r.writeAlias(ctx, log, out, provider, externalID, models.ReviewStatusApproved)
	case best.score >= r.cfg.ReviewMediumThreshold:
		out.Decision, out.Reason, out.Priority = DecisionReview, ReasonLowConfidence, models.ReviewPriorityMedium
	case best.score >= r.cfg.ReviewLowThreshold:
		out.Decision, out.Reason, out.Priority = DecisionReview, ReasonLowConfidence, models.ReviewPriorityLow
	default:
		out.Decision, out.Reason = DecisionReject, ReasonBelowThreshold
		out.TeamID = ""
		log.Debug("Best candidate below review threshold")
		return out, nil
	}

	out, err := r.writeAlias(ctx, log, out, provider, externalID, models.ReviewStatusPending)
	if err != nil || out.Decision != DecisionReview {
		return out, err
	}

	entry := models.ReviewQueueEntry{
		ID:             uuid.NewString(),
		Provider:       provider,
		ExternalID:     externalID,
		ProposedTeamID: out.TeamID,
		Confidence:     out.Confidence,
		RawName:        rec.RawName,
		Priority:       out.Priority,
		Status:         models.ReviewStatusPending,
		CreatedAt:      r.clock.Now().UTC(),
	}
	if err := r.queue.Enqueue(ctx, entry); err != nil {
		return Outcome{}, models.StoreUnavailable("enqueue review", err)
	}

	log.WithField("priority", out.Priority).Info("Queued match for review")
	return out, nil
}

// writeAlias records the fuzzy decision. A live alias pointing elsewhere
// turns the outcome into a conflict and is left untouched.
func (r *Resolver) writeAlias(
	ctx context.Context,
	log ectologger.Logger,
	out Outcome,
	provider, externalID string,
	status models.ReviewStatus,
) (Outcome, error) {
	now := r.clock.Now().UTC()
	err := r.aliases.UpsertAlias(ctx, models.ExternalIdentifier{
		Provider:     provider,
		ExternalID:   externalID,
		TeamID:       out.TeamID,
		Confidence:   out.Confidence,
		ReviewStatus: status,
		MatchMethod:  models.MatchMethodFuzzyAuto,
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	var conflict *models.AliasConflictError
	switch {
	case errors.As(err, &conflict):
		log.WithError(err).WithField("existing_team_id", conflict.Existing.TeamID).Warn("Alias conflict, not applied")
		out.Decision = DecisionConflict
		out.Reason = ReasonAliasConflict
		out.Priority = ""
		out.TeamID = r.canonical(conflict.Existing.TeamID)
		return out, nil
	case err != nil:
		return Outcome{}, models.StoreUnavailable("upsert alias", err)
	}

	if out.Decision == DecisionAccept {
		log.Info("Auto-accepted fuzzy match")
	}
	return out, nil
}

// cohortFor prefers provider hints over what the name says.
func (r *Resolver) cohortFor(rec models.IngestRecord, parsed nameparser.ParsedName) models.Cohort {
	c := models.Cohort{
		BirthYear: parsed.Age.BirthYear,
		Gender:    models.Gender(parsed.Gender),
		Region:    strings.ToLower(strings.TrimSpace(rec.RegionHint)),
	}
	if rec.AgeHint != "" {
		if age, _, ok := r.parser.MatchAge(strings.TrimSpace(rec.AgeHint)); ok && age.BirthYear != 0 {
			c.BirthYear = age.BirthYear
		}
	}
	if g := GenderFromHint(rec.GenderHint); g != models.GenderUnknown {
		c.Gender = g
	}
	return c
}

// GenderFromHint maps provider gender spellings.
func GenderFromHint(hint string) models.Gender {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "b", "boys", "boy", "male", "m", "men":
		return models.GenderBoys
	case "g", "girls", "girl", "female", "f", "women":
		return models.GenderGirls
	}
	return models.GenderUnknown
}

func (r *Resolver) canonical(id string) string {
	if r.canon == nil || id == "" {
		return id
	}
	return r.canon.Resolve(id)
}

func (r *Resolver) parseableID(id string) bool {
	if id == "" || len(id) > r.cfg.MaxExternalIDLength || !utf8.ValidString(id) {
		return false
	}
	for _, c := range id {
		if unicode.IsControl(c) {
			return false
		}
	}
	return true
}
