package review

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	tcontext "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/events"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
)

var validate = validator.New()

// Store is the review queue; *reviewqueue.Repository satisfies it.
type Store interface {
	Get(ctx context.Context, id string) (*models.ReviewQueueEntry, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.ReviewQueueEntry, error)
	Approve(ctx context.Context, id, decidedBy string) (*models.ReviewQueueEntry, error)
	Reject(ctx context.Context, id, decidedBy string) (*models.ReviewQueueEntry, error)
}

// Handler serves the human review queue.
type Handler struct {
	logger  ectologger.Logger
	store   Store
	emitter *events.Emitter
}

func NewHandler(logger ectologger.Logger, store Store, emitter *events.Emitter) *Handler {
	return &Handler{logger: logger, store: store, emitter: emitter}
}

// Register registers review queue routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListPending)
	g.GET("/:id", h.Get)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}

// ListPending lists pending entries, medium priority first
func (h *Handler) ListPending(c echo.Context) error {
	ctx := c.Request().Context()

	limit, err := intParam(c, "limit", 100)
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}

	entries, err := h.store.ListPending(ctx, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// Get gets a review entry by ID
func (h *Handler) Get(c echo.Context) error {
	entry, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

// Approve approves the proposed mapping
func (h *Handler) Approve(c echo.Context) error {
	return h.decide(c, h.store.Approve)
}

// Reject rejects the proposed mapping
func (h *Handler) Reject(c echo.Context) error {
	return h.decide(c, h.store.Reject)
}

func (h *Handler) decide(c echo.Context, fn func(ctx context.Context, id, decidedBy string) (*models.ReviewQueueEntry, error)) error {
	ctx := c.Request().Context()

	var req models.ReviewDecisionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.DecidedBy == "" {
		req.DecidedBy = tcontext.GetReviewer(ctx)
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "decided_by or an X-Reviewer header is required")
	}

	entry, err := fn(ctx, c.Param("id"), req.DecidedBy)
	if err != nil {
		return err
	}

	metrics.ReviewDecisionsTotal.WithLabelValues(string(entry.Status)).Inc()
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id":        entry.ID,
		"provider":         entry.Provider,
		"external_id":      entry.ExternalID,
		"proposed_team_id": entry.ProposedTeamID,
		"status":           entry.Status,
		"decided_by":       req.DecidedBy,
	}).Info("Review entry decided")
	_ = h.emitter.EmitReview(ctx, *entry)

	return c.JSON(http.StatusOK, entry)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be a non-negative integer", name)
	}
	return v, nil
}
