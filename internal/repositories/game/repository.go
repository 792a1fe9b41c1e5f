package game

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

var columns = []string{"id", "team_id", "opponent_id", "played_on", "goals_for", "goals_against"}

// Repository reads game histories
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new game repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GamesForTeams returns the games of each team, oldest first. Teams without
// games are absent from the map.
func (r *Repository) GamesForTeams(ctx context.Context, teamIDs []string) (map[string][]models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "game.Repository.GamesForTeams")
	defer span.End()

	out := make(map[string][]models.Game, len(teamIDs))
	if len(teamIDs) == 0 {
		return out, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("games")
	sb.Where(sb.In("team_id", sqlbuilder.Flatten(teamIDs)...))
	sb.OrderBy("team_id", "played_on", "id")

	query, args := sb.Build()
	var games []models.Game
	if err := r.db.Conn(ctx).SelectContext(ctx, &games, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("teams", len(teamIDs)).Error("Failed to load games")
		return nil, models.StoreUnavailable("load games", err)
	}

	for _, g := range games {
		out[g.TeamID] = append(out[g.TeamID], g)
	}
	return out, nil
}

// CreateBatch inserts games. Rows with an id already present are skipped.
func (r *Repository) CreateBatch(ctx context.Context, games []models.Game) error {
	ctx, span := tracing.StartSpan(ctx, "game.Repository.CreateBatch")
	defer span.End()

	if len(games) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("games")
	ib.Cols(columns...)
	for _, g := range games {
		if g.ID == "" {
			g.ID = uuid.New().String()
		}
		ib.Values(g.ID, g.TeamID, g.OpponentID, g.PlayedOn, g.GoalsFor, g.GoalsAgainst)
	}
	ib.OnConflictDoNothing([]string{"id"}, "")

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create games")
		return models.StoreUnavailable("create games", err)
	}

	r.logger.WithContext(ctx).WithField("count", len(games)).Debug("Created games batch")
	return nil
}
