package mergesignal

import (
	"context"
	"sort"
	"sync"

	"github.com/Gobusters/ectolinq"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// TeamSource pages through teams.
type TeamSource interface {
	ScanTeams(ctx context.Context, filter models.TeamFilter) ([]models.Team, error)
}

// GameSource loads game histories keyed by team id.
type GameSource interface {
	GamesForTeams(ctx context.Context, teamIDs []string) (map[string][]models.Game, error)
}

// Canonicalizer maps possibly deprecated team ids to canonical ids.
type Canonicalizer interface {
	Resolve(id string) string
}

// ScanStats summarizes one scan.
type ScanStats struct {
	Cohorts     int
	Pairs       int
	Vetoed      int
	Suggestions int
}

// Scan partitions every non-deprecated team matching filter into cohorts and
// evaluates all pairs within each cohort. Cohorts run in parallel; the result
// is sorted by confidence, then team ids.
func (e *Engine) Scan(ctx context.Context, filter models.TeamFilter) ([]models.MergeSuggestion, ScanStats, error) {
	ctx, span := tracing.StartSpan(ctx, "mergesignal.Engine.Scan")
	defer span.End()

	log := e.log.WithContext(ctx)

	cohorts, err := e.loadCohorts(ctx, filter)
	if err != nil {
		return nil, ScanStats{}, err
	}

	keys := make([]string, 0, len(cohorts))
	for k, teams := range cohorts {
		if len(teams) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var (
		mu          sync.Mutex
		suggestions []models.MergeSuggestion
		stats       = ScanStats{Cohorts: len(keys)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, key := range keys {
		teams := cohorts[key]
		g.Go(func() error {
			found, cs, err := e.scanCohort(gctx, teams)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			suggestions = append(suggestions, found...)
			stats.Pairs += cs.Pairs
			stats.Vetoed += cs.Vetoed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ScanStats{}, err
	}

	SortSuggestions(suggestions)
	stats.Suggestions = len(suggestions)

	log.WithFields(map[string]any{
		"cohorts":     stats.Cohorts,
		"pairs":       stats.Pairs,
		"vetoed":      stats.Vetoed,
		"suggestions": stats.Suggestions,
	}).Info("Merge scan complete")

	return suggestions, stats, nil
}

// SortSuggestions orders suggestions by descending confidence, then ids.
func SortSuggestions(s []models.MergeSuggestion) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Confidence != s[j].Confidence {
			return s[i].Confidence > s[j].Confidence
		}
		if s[i].TeamAID != s[j].TeamAID {
			return s[i].TeamAID < s[j].TeamAID
		}
		return s[i].TeamBID < s[j].TeamBID
	})
}

func (e *Engine) loadCohorts(ctx context.Context, filter models.TeamFilter) (map[string][]models.Team, error) {
	filter.IncludeDeprecated = false
	filter.AfterID = ""
	filter.Limit = e.cfg.PageSize

	cohorts := make(map[string][]models.Team)
	for {
		page, err := e.teams.ScanTeams(ctx, filter)
		if err != nil {
			return nil, models.StoreUnavailable("scan teams", err)
		}
		for _, t := range page {
			if t.Deprecated {
				continue
			}
			key := t.Cohort().Key()
			cohorts[key] = append(cohorts[key], t)
		}
		if len(page) < filter.Limit {
			return cohorts, nil
		}
		filter.AfterID = page[len(page)-1].ID
	}
}

func (e *Engine) scanCohort(ctx context.Context, teams []models.Team) ([]models.MergeSuggestion, ScanStats, error) {
	ctx, span := tracing.StartSpan(ctx, "mergesignal.Engine.scanCohort")
	defer span.End()

	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })

	ids := ectolinq.Map(teams, func(t models.Team) string { return t.ID })
	games, err := e.games.GamesForTeams(ctx, ids)
	if err != nil {
		return nil, ScanStats{}, models.StoreUnavailable("load games", err)
	}

	members := make([]TeamGames, len(teams))
	for i, t := range teams {
		members[i] = TeamGames{Team: t, Games: e.canonicalOpponents(games[t.ID])}
	}

	var (
		out   []models.MergeSuggestion
		stats ScanStats
	)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if err := ctx.Err(); err != nil {
				return nil, ScanStats{}, err
			}
			stats.Pairs++

			ev := e.Evaluate(members[i], members[j])
			if ev.Veto != nil {
				stats.Vetoed++
				continue
			}
			if s := e.suggestion(members[i], members[j], ev); s != nil {
				out = append(out, *s)
			}
		}
	}

	if len(out) > 0 {
		e.log.WithContext(ctx).WithFields(map[string]any{
			"cohort":      teams[0].Cohort().Key(),
			"teams":       len(teams),
			"suggestions": len(out),
		}).Debug("Cohort produced merge suggestions")
	}
	return out, stats, nil
}

// canonicalOpponents rewrites opponent ids through the merge map so games
// against a since-merged team still overlap.
func (e *Engine) canonicalOpponents(games []models.Game) []models.Game {
	if e.canon == nil {
		return games
	}
	out := make([]models.Game, len(games))
	for i, g := range games {
		g.OpponentID = e.canon.Resolve(g.OpponentID)
		out[i] = g
	}
	return out
}
