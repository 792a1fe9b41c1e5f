package externalid

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

var columns = []string{"provider", "external_id", "team_id", "confidence", "review_status", "match_method", "created_at", "updated_at"}

// An existing row may be overwritten when it is rejected or already points at
// the same team. An approved row keeps its status and method on a same-team
// rewrite.
const upsertGuard = "external_identifiers.review_status = 'rejected' OR external_identifiers.team_id = EXCLUDED.team_id"

var upsertSets = []string{
	database.Excluded("team_id"),
	"confidence = GREATEST(EXCLUDED.confidence, CASE WHEN external_identifiers.team_id = EXCLUDED.team_id THEN external_identifiers.confidence ELSE 0 END)",
	"review_status = CASE WHEN external_identifiers.team_id = EXCLUDED.team_id AND external_identifiers.review_status = 'approved' THEN external_identifiers.review_status ELSE EXCLUDED.review_status END",
	"match_method = CASE WHEN external_identifiers.team_id = EXCLUDED.team_id AND external_identifiers.review_status = 'approved' THEN external_identifiers.match_method ELSE EXCLUDED.match_method END",
	database.Excluded("updated_at"),
}

// Repository stores provider aliases
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new alias repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetAlias returns nil, nil when the key is unknown.
func (r *Repository) GetAlias(ctx context.Context, provider, externalID string) (*models.ExternalIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "externalid.Repository.GetAlias")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_identifiers")
	sb.Where(
		sb.Equal("provider", provider),
		sb.Equal("external_id", externalID),
	)

	query, args := sb.Build()
	var alias models.ExternalIdentifier
	if err := r.db.Conn(ctx).GetContext(ctx, &alias, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"provider":    provider,
			"external_id": externalID,
		}).Error("Failed to get alias")
		return nil, models.StoreUnavailable("get alias", err)
	}

	return &alias, nil
}

// UpsertAlias writes an alias keyed by (provider, external_id). A live row
// pointing at a different team is left untouched and reported as an
// *models.AliasConflictError.
func (r *Repository) UpsertAlias(ctx context.Context, alias models.ExternalIdentifier) error {
	ctx, span := tracing.StartSpan(ctx, "externalid.Repository.UpsertAlias")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"provider":    alias.Provider,
		"external_id": alias.ExternalID,
		"team_id":     alias.TeamID,
	})

	now := time.Now().UTC()
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = now
	}
	alias.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto("external_identifiers")
	ib.Cols(columns...)
	ib.Values(alias.Provider, alias.ExternalID, alias.TeamID, alias.Confidence, alias.ReviewStatus, alias.MatchMethod, alias.CreatedAt, alias.UpdatedAt)
	ib.OnConflict([]string{"provider", "external_id"}, upsertSets, upsertGuard)

	query, args := ib.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to upsert alias")
		return models.StoreUnavailable("upsert alias", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		log.WithError(err).Error("Failed to read upserted alias rows")
		return models.StoreUnavailable("upsert alias rows affected", err)
	}
	if rows > 0 {
		return nil
	}

	existing, err := r.GetAlias(ctx, alias.Provider, alias.ExternalID)
	if err != nil {
		return err
	}
	if existing == nil {
		// row vanished between the guarded write and the read
		return models.StoreUnavailable("upsert alias", errors.New("alias row changed concurrently"))
	}

	log.WithField("existing_team_id", existing.TeamID).Warn("Alias conflict, existing row left unmodified")
	return &models.AliasConflictError{Existing: *existing, Attempted: alias}
}

// ListByTeam returns the aliases pointing at a team
func (r *Repository) ListByTeam(ctx context.Context, teamID string) ([]models.ExternalIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "externalid.Repository.ListByTeam")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("external_identifiers")
	sb.Where(sb.Equal("team_id", teamID))
	sb.OrderBy("provider", "external_id")

	query, args := sb.Build()
	var aliases []models.ExternalIdentifier
	if err := r.db.Conn(ctx).SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aliases")
		return nil, models.StoreUnavailable("list aliases", err)
	}

	return aliases, nil
}
