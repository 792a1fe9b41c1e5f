package mergeedge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

var columns = []string{"deprecated_team_id", "canonical_team_id", "created_by", "reason", "confidence", "created_at"}

// Repository stores the merge graph
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge edge repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListMergeEdges returns every edge
func (r *Repository) ListMergeEdges(ctx context.Context) ([]models.MergeEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeedge.Repository.ListMergeEdges")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_edges")
	sb.OrderBy("created_at", "deprecated_team_id")

	query, args := sb.Build()
	var edges []models.MergeEdge
	if err := r.db.Conn(ctx).SelectContext(ctx, &edges, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge edges")
		return nil, models.StoreUnavailable("list merge edges", err)
	}

	return edges, nil
}

// Apply records a merge in one transaction. The requested canonical team is
// first resolved to its root, edges that targeted the newly deprecated team
// are re-pointed at that root, and the deprecated team is flagged. Applying
// the same merge twice is a no-op. The stored edge is returned.
func (r *Repository) Apply(ctx context.Context, edge models.MergeEdge) (*models.MergeEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeedge.Repository.Apply")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"deprecated_team_id": edge.DeprecatedTeamID,
		"canonical_team_id":  edge.CanonicalTeamID,
	})

	var applied *models.MergeEdge
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		if err := lockTeams(ctx, tx, edge.DeprecatedTeamID, edge.CanonicalTeamID); err != nil {
			return err
		}

		root, err := r.target(ctx, tx, edge.CanonicalTeamID)
		if err != nil {
			return err
		}
		if root != "" {
			edge.CanonicalTeamID = root
		}
		if edge.CanonicalTeamID == edge.DeprecatedTeamID {
			return fmt.Errorf("%w: team %s already resolves to itself", models.ErrInvalidMerge, edge.DeprecatedTeamID)
		}

		existing, err := r.target(ctx, tx, edge.DeprecatedTeamID)
		if err != nil {
			return err
		}
		switch {
		case existing == edge.CanonicalTeamID:
			applied, err = r.get(ctx, tx, edge.DeprecatedTeamID)
			return err
		case existing != "":
			return fmt.Errorf("%w: team %s already merged into %s", models.ErrMergeConflict, edge.DeprecatedTeamID, existing)
		}

		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update("merge_edges")
		ub.Set(ub.Assign("canonical_team_id", edge.CanonicalTeamID))
		ub.Where(ub.Equal("canonical_team_id", edge.DeprecatedTeamID))
		query, args := ub.Build()
		repointed, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return models.StoreUnavailable("repoint merge edges", err)
		}

		if edge.CreatedAt.IsZero() {
			edge.CreatedAt = time.Now().UTC()
		}
		ib := database.NewInsertBuilder()
		ib.InsertInto("merge_edges")
		ib.Cols(columns...)
		ib.Values(edge.DeprecatedTeamID, edge.CanonicalTeamID, edge.CreatedBy, edge.Reason, edge.Confidence, edge.CreatedAt)
		ib.OnConflictDoNothing([]string{"deprecated_team_id"}, "")
		query, args = ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.StoreUnavailable("insert merge edge", err)
		}

		tb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		tb.Update("teams")
		tb.Set(
			tb.Assign("deprecated", true),
			tb.Assign("updated_at", edge.CreatedAt),
		)
		tb.Where(tb.Equal("id", edge.DeprecatedTeamID))
		query, args = tb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.StoreUnavailable("deprecate team", err)
		}

		n, _ := repointed.RowsAffected()
		log.WithFields(map[string]any{
			"root_team_id":    edge.CanonicalTeamID,
			"repointed_edges": n,
		}).Info("Applied merge")

		applied = &edge
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to apply merge")
		return nil, err
	}

	return applied, nil
}

// lockTeams takes row locks on both teams and checks they exist.
func lockTeams(ctx context.Context, q database.Querier, ids ...string) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("teams")
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("id")
	sb.ForUpdate()

	query, args := sb.Build()
	var found []string
	if err := q.SelectContext(ctx, &found, query, args...); err != nil {
		return models.StoreUnavailable("lock teams", err)
	}

	seen := make(map[string]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			return fmt.Errorf("%w: team %s", models.ErrNotFound, id)
		}
	}
	return nil
}

// target returns the canonical id a team currently points at, or "".
func (r *Repository) target(ctx context.Context, q database.Querier, id string) (string, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("canonical_team_id")
	sb.From("merge_edges")
	sb.Where(sb.Equal("deprecated_team_id", id))

	query, args := sb.Build()
	var canonical string
	if err := q.GetContext(ctx, &canonical, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", models.StoreUnavailable("get merge edge", err)
	}
	return canonical, nil
}

func (r *Repository) get(ctx context.Context, q database.Querier, id string) (*models.MergeEdge, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_edges")
	sb.Where(sb.Equal("deprecated_team_id", id))

	query, args := sb.Build()
	var edge models.MergeEdge
	if err := q.GetContext(ctx, &edge, query, args...); err != nil {
		return nil, models.StoreUnavailable("get merge edge", err)
	}
	return &edge, nil
}
