package team

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const defaultPageSize = 500

var columns = []string{"id", "name", "club_name", "birth_year", "gender", "region_code", "league", "deprecated", "created_at", "updated_at"}

// Repository handles team persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new team repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a team for an unmatched import
func (r *Repository) Create(ctx context.Context, in models.NewTeam) (*models.Team, error) {
	ctx, span := tracing.StartSpan(ctx, "team.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	team := &models.Team{
		ID:         uuid.New().String(),
		Name:       in.Name,
		ClubName:   in.ClubName,
		BirthYear:  in.BirthYear,
		Gender:     in.Gender,
		RegionCode: in.RegionCode,
		League:     in.League,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("teams")
	sb.Cols(columns...)
	sb.Values(team.ID, team.Name, team.ClubName, team.BirthYear, team.Gender, team.RegionCode, team.League, team.Deprecated, team.CreatedAt, team.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": in.Name}).Error("Failed to create team")
		return nil, models.StoreUnavailable("create team", err)
	}

	return team, nil
}

// GetByID returns a team, deprecated or not
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	ctx, span := tracing.StartSpan(ctx, "team.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("teams")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var team models.Team
	if err := r.db.Conn(ctx).GetContext(ctx, &team, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "team %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get team")
		return nil, models.StoreUnavailable("get team", err)
	}

	return &team, nil
}

// ScanTeams returns one page of teams ordered by id. A set filter field also
// matches teams where that attribute is unknown, so a team missing its region
// still competes in every region's cohort.
func (r *Repository) ScanTeams(ctx context.Context, filter models.TeamFilter) ([]models.Team, error) {
	ctx, span := tracing.StartSpan(ctx, "team.Repository.ScanTeams")
	defer span.End()

	limit := filter.Limit
	if limit < 1 {
		limit = defaultPageSize
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("teams")

	var where []string
	if !filter.IncludeDeprecated {
		where = append(where, sb.Equal("deprecated", false))
	}
	if filter.BirthYear != 0 {
		where = append(where, sb.Or(sb.Equal("birth_year", filter.BirthYear), sb.Equal("birth_year", 0)))
	}
	if filter.Gender != models.GenderUnknown {
		where = append(where, sb.Or(sb.Equal("gender", filter.Gender), sb.Equal("gender", models.GenderUnknown)))
	}
	if filter.Region != "" {
		where = append(where, sb.Or(sb.Equal("lower(region_code)", filter.Region), sb.IsNull("region_code"), sb.Equal("region_code", "")))
	}
	if filter.AfterID != "" {
		where = append(where, sb.GreaterThan("id", filter.AfterID))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var teams []models.Team
	if err := r.db.Conn(ctx).SelectContext(ctx, &teams, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"birth_year": filter.BirthYear,
			"gender":     filter.Gender,
			"region":     filter.Region,
		}).Error("Failed to scan teams")
		return nil, models.StoreUnavailable("scan teams", err)
	}

	return teams, nil
}

// SetDeprecated flags a team as merged away. Deprecation is one way.
func (r *Repository) SetDeprecated(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "team.Repository.SetDeprecated")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("teams")
	sb.Set(
		sb.Assign("deprecated", true),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"team_id": id}).Error("Failed to deprecate team")
		return models.StoreUnavailable("deprecate team", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "team %s not found", id)
	}

	return nil
}
