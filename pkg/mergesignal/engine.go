// Package mergesignal scores pairs of distinct canonical teams for likely
// duplication using their game history, names and geography.
//
// Every pair passes the structural veto first. A vetoed pair is never scored,
// and only suggestions at or above the suggestion floor are emitted.
package mergesignal

import (
	"strings"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/thistle/pkg/features"
	"github.com/Ramsey-B/thistle/pkg/matching"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/nameparser"
)

// MinSuggestionFloor is the lowest confidence a suggestion may carry.
// Configured floors below it are raised to it.
const MinSuggestionFloor = 0.90

// Config contains the engine thresholds.
type Config struct {
	SuggestionFloor    float64 // suggestions below are dropped (default: 0.90)
	AutoMergeThreshold float64 // >= auto_merge tier, else review (default: 0.95)
	Workers            int     // cohorts evaluated in parallel (default: 4)
	PageSize           int     // teams per scan page (default: 500)
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		SuggestionFloor:    MinSuggestionFloor,
		AutoMergeThreshold: 0.95,
		Workers:            4,
		PageSize:           500,
	}
}

// TeamGames is a team with its game history.
type TeamGames struct {
	Team  models.Team
	Games []models.Game
}

// Evaluation is the full result of scoring one pair, kept for logs and tests.
type Evaluation struct {
	Veto       *features.Veto
	Signals    models.SignalBreakdown
	Confidence float64
}

// Engine scores team pairs.
type Engine struct {
	log        ectologger.Logger
	teams      TeamSource
	games      GameSource
	canon      Canonicalizer
	extractor  *features.Extractor
	similarity *matching.SimilarityScorer
	scorer     *matching.Scorer
	cfg        Config
}

// NewEngine creates an engine. teams, games and canon are only needed by
// Scan; canon may be nil.
func NewEngine(
	log ectologger.Logger,
	teams TeamSource,
	games GameSource,
	canon Canonicalizer,
	parser *nameparser.Parser,
	cfg Config,
) *Engine {
	def := DefaultConfig()
	cfg.SuggestionFloor = max(cfg.SuggestionFloor, MinSuggestionFloor)
	if cfg.AutoMergeThreshold <= 0 {
		cfg.AutoMergeThreshold = def.AutoMergeThreshold
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}

	return &Engine{
		log:        log,
		teams:      teams,
		games:      games,
		canon:      canon,
		extractor:  features.NewExtractor(parser),
		similarity: matching.NewSimilarityScorer(parser.Vocabulary()),
		scorer:     matching.NewScorer(),
		cfg:        cfg,
	}
}

// Evaluate runs the veto and, when it passes, every signal.
func (e *Engine) Evaluate(a, b TeamGames) Evaluation {
	fa := e.extractor.Extract(a.Team.Name)
	fb := e.extractor.Extract(b.Team.Name)
	if veto := features.Compare(fa, fb); veto != nil {
		return Evaluation{Veto: veto}
	}

	signals := models.SignalBreakdown{
		OpponentOverlap:   OpponentOverlap(a.Games, b.Games),
		ScheduleAlignment: ScheduleAlignment(e.scorer, a.Games, b.Games),
		NameSimilarity:    e.nameSimilarity(a.Team, b.Team),
		Geography:         e.geography(a.Team, fa, b.Team, fb),
		Performance:       Performance(e.scorer, a.Games, b.Games),
	}
	return Evaluation{
		Signals:    signals,
		Confidence: Combine(signals),
	}
}

// Suggest evaluates a pair and returns a suggestion, or nil when the pair is
// vetoed or below the suggestion floor.
func (e *Engine) Suggest(a, b TeamGames) *models.MergeSuggestion {
	return e.suggestion(a, b, e.Evaluate(a, b))
}

func (e *Engine) suggestion(a, b TeamGames, ev Evaluation) *models.MergeSuggestion {
	if ev.Veto != nil || ev.Confidence < e.cfg.SuggestionFloor {
		return nil
	}

	canonical, deprecated := Canonical(a.Team, b.Team)
	tier := models.RecommendationReview
	if ev.Confidence >= e.cfg.AutoMergeThreshold {
		tier = models.RecommendationAutoMerge
	}

	return &models.MergeSuggestion{
		TeamAID:          a.Team.ID,
		TeamBID:          b.Team.ID,
		Confidence:       ev.Confidence,
		Signals:          ev.Signals,
		Tier:             tier,
		CanonicalTeamID:  canonical.ID,
		DeprecatedTeamID: deprecated.ID,
		Cohort:           a.Team.Cohort().Key(),
	}
}

func (e *Engine) nameSimilarity(a, b models.Team) float64 {
	name := e.similarity.BaseRatio(a.Name, b.Name)
	club := 0.0
	if strings.TrimSpace(a.ClubName) != "" && strings.TrimSpace(b.ClubName) != "" {
		club = e.similarity.BaseRatio(a.ClubName, b.ClubName)
	}
	return nameWeight*name + clubWeight*club
}

func (e *Engine) geography(a models.Team, fa features.Features, b models.Team, fb features.Features) float64 {
	score := 0.0
	stateA, stateB := stateCode(a, fa), stateCode(b, fb)
	if stateA != "" && stateA == stateB {
		score += sameStateScore
	}
	if e.similarity.SameClub(a.ClubName, b.ClubName) {
		score += sameClubScore
	}
	return score
}

// stateCode prefers the stored region over a state code written in the name.
func stateCode(t models.Team, f features.Features) string {
	if r := strings.ToLower(strings.TrimSpace(t.Region())); r != "" {
		return r
	}
	return f.StateCode
}

// =============================================================================
// CANONICAL SELECTION
// =============================================================================

// CanonicalScore ranks how good a team's name is as the surviving record:
// +100 when it contains its own club name, +10 when it is not all caps, plus
// a small bonus for length.
func CanonicalScore(t models.Team) float64 {
	score := 0.0
	if matching.ContainsClub(t.Name, t.ClubName) {
		score += 100
	}
	if isMixedCase(t.Name) {
		score += 10
	}
	return score + float64(utf8.RuneCountInString(t.Name))/100
}

// Canonical picks the surviving team of a pair. Equal scores fall back to
// the older team, then the smaller id.
func Canonical(a, b models.Team) (canonical, deprecated models.Team) {
	sa, sb := CanonicalScore(a), CanonicalScore(b)
	switch {
	case sa > sb:
		return a, b
	case sb > sa:
		return b, a
	case a.CreatedAt.Before(b.CreatedAt):
		return a, b
	case b.CreatedAt.Before(a.CreatedAt):
		return b, a
	case a.ID <= b.ID:
		return a, b
	}
	return b, a
}

// isMixedCase reports whether s is not all caps.
func isMixedCase(s string) bool {
	return strings.ToUpper(s) != s
}
