package reviewqueue

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

// ApprovedConfidenceFloor is the minimum confidence of an alias a reviewer
// approved.
const ApprovedConfidenceFloor = 0.90

var columns = []string{"id", "provider", "external_id", "proposed_team_id", "confidence", "raw_name", "priority", "status", "decided_by", "decided_at", "created_at"}

// Repository is the Postgres backed review queue
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review queue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Enqueue adds an entry. At most one pending entry exists per alias key, so a
// repeat enqueue for the same key is a no-op.
func (r *Repository) Enqueue(ctx context.Context, entry models.ReviewQueueEntry) error {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Enqueue")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Status = models.ReviewStatusPending

	ib := database.NewInsertBuilder()
	ib.InsertInto("review_queue")
	ib.Cols(columns...)
	ib.Values(entry.ID, entry.Provider, entry.ExternalID, entry.ProposedTeamID, entry.Confidence, entry.RawName, entry.Priority, entry.Status, nil, nil, entry.CreatedAt)
	ib.OnConflictDoNothing([]string{"provider", "external_id"}, "status = 'pending'")

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"provider":    entry.Provider,
			"external_id": entry.ExternalID,
		}).Error("Failed to enqueue review entry")
		return models.StoreUnavailable("enqueue review", err)
	}

	return nil
}

// Get retrieves an entry by id
func (r *Repository) Get(ctx context.Context, id string) (*models.ReviewQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Get")
	defer span.End()

	return r.get(ctx, r.db.Conn(ctx), id, false)
}

// ListPending returns pending entries, medium priority first, then by
// confidence.
func (r *Repository) ListPending(ctx context.Context, limit, offset int) ([]models.ReviewQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("review_queue")
	sb.Where(sb.Equal("status", models.ReviewStatusPending))
	sb.OrderBy("CASE priority WHEN 'medium' THEN 0 ELSE 1 END", "confidence DESC", "created_at", "id")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	entries := []models.ReviewQueueEntry{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review queue")
		return nil, models.StoreUnavailable("list review queue", err)
	}

	return entries, nil
}

// Approve marks the entry approved and promotes its alias to an approved
// manual mapping with confidence of at least ApprovedConfidenceFloor.
func (r *Repository) Approve(ctx context.Context, id, decidedBy string) (*models.ReviewQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Approve")
	defer span.End()

	return r.decide(ctx, id, decidedBy, models.ReviewStatusApproved)
}

// Reject marks the entry rejected and the alias with it. A rejected alias is
// not a live mapping; the next import of the key runs fuzzy matching again
// without the rejected team.
func (r *Repository) Reject(ctx context.Context, id, decidedBy string) (*models.ReviewQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Reject")
	defer span.End()

	return r.decide(ctx, id, decidedBy, models.ReviewStatusRejected)
}

func (r *Repository) decide(ctx context.Context, id, decidedBy string, status models.ReviewStatus) (*models.ReviewQueueEntry, error) {
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id":  id,
		"decided_by": decidedBy,
		"status":     status,
	})

	var decided *models.ReviewQueueEntry
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.Tx) error {
		entry, err := r.get(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if entry.Status != models.ReviewStatusPending {
			return httperror.NewHTTPErrorf(http.StatusConflict, "review %s is already %s", id, entry.Status)
		}

		now := time.Now().UTC()
		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update("review_queue")
		ub.Set(
			ub.Assign("status", status),
			ub.Assign("decided_by", decidedBy),
			ub.Assign("decided_at", now),
		)
		ub.Where(ub.Equal("id", id))
		query, args := ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.StoreUnavailable("update review", err)
		}

		if err := r.updateAlias(ctx, tx, entry, status, now); err != nil {
			return err
		}

		entry.Status = status
		entry.DecidedBy = &decidedBy
		entry.DecidedAt = &now
		decided = entry
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to decide review")
		return nil, err
	}

	log.Info("Review decided")
	return decided, nil
}

// updateAlias applies the decision to the alias row. An approval that would
// repoint an approved alias at another team is a conflict.
func (r *Repository) updateAlias(ctx context.Context, tx database.Tx, entry *models.ReviewQueueEntry, status models.ReviewStatus, now time.Time) error {
	if status == models.ReviewStatusRejected {
		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update("external_identifiers")
		ub.Set(
			ub.Assign("review_status", models.ReviewStatusRejected),
			ub.Assign("updated_at", now),
		)
		ub.Where(
			ub.Equal("provider", entry.Provider),
			ub.Equal("external_id", entry.ExternalID),
			ub.Equal("team_id", entry.ProposedTeamID),
			ub.NotEqual("review_status", models.ReviewStatusApproved),
		)
		query, args := ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.StoreUnavailable("reject alias", err)
		}
		return nil
	}

	confidence := entry.Confidence
	if confidence < ApprovedConfidenceFloor {
		confidence = ApprovedConfidenceFloor
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("external_identifiers")
	ib.Cols("provider", "external_id", "team_id", "confidence", "review_status", "match_method", "created_at", "updated_at")
	ib.Values(entry.Provider, entry.ExternalID, entry.ProposedTeamID, confidence, models.ReviewStatusApproved, models.MatchMethodManual, now, now)
	ib.OnConflict(
		[]string{"provider", "external_id"},
		[]string{
			database.Excluded("team_id"),
			"confidence = GREATEST(external_identifiers.confidence, EXCLUDED.confidence)",
			database.Excluded("review_status"),
			database.Excluded("match_method"),
			database.Excluded("updated_at"),
		},
		"external_identifiers.review_status <> 'approved' OR external_identifiers.team_id = EXCLUDED.team_id",
	)
	query, args := ib.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return models.StoreUnavailable("approve alias", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "alias %s/%s is already approved for another team", entry.Provider, entry.ExternalID)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, q database.Querier, id string, forUpdate bool) (*models.ReviewQueueEntry, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("review_queue")
	sb.Where(sb.Equal("id", id))
	if forUpdate {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var entry models.ReviewQueueEntry
	if err := q.GetContext(ctx, &entry, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "review %s not found", id)
		}
		return nil, models.StoreUnavailable("get review", err)
	}
	return &entry, nil
}
