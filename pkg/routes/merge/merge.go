package merge

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/thistle/pkg/mergesignal"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/resolver"
)

var validate = validator.New()

// EdgeLister reads merge edges; *mergeedge.Repository satisfies it.
type EdgeLister interface {
	ListMergeEdges(ctx context.Context) ([]models.MergeEdge, error)
}

// Applier applies a merge; *processor.MergeExecutor satisfies it.
type Applier interface {
	Apply(ctx context.Context, edge models.MergeEdge, auto bool) (*models.MergeEdge, error)
}

// Scanner finds duplicate candidates; *mergesignal.Engine satisfies it.
type Scanner interface {
	Scan(ctx context.Context, filter models.TeamFilter) ([]models.MergeSuggestion, mergesignal.ScanStats, error)
}

// Lineage reads merge history from the graph. May be nil.
type Lineage interface {
	Lineage(ctx context.Context, teamID string) ([]string, error)
}

// Handler serves merge edges, manual merges and suggestions.
type Handler struct {
	logger  ectologger.Logger
	edges   EdgeLister
	applier Applier
	scanner Scanner
	lineage Lineage
}

func NewHandler(logger ectologger.Logger, edges EdgeLister, applier Applier, scanner Scanner, lineage Lineage) *Handler {
	return &Handler{
		logger:  logger,
		edges:   edges,
		applier: applier,
		scanner: scanner,
		lineage: lineage,
	}
}

// Register registers merge routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListEdges)
	g.POST("", h.ApplyMerge)
	g.GET("/suggestions", h.Suggestions)
	g.GET("/lineage/:teamId", h.Lineage)
}

// ListEdges lists every deprecated -> canonical edge
func (h *Handler) ListEdges(c echo.Context) error {
	edges, err := h.edges.ListMergeEdges(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, edges)
}

// ApplyMerge applies a human-approved merge
func (h *Handler) ApplyMerge(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ApplyMergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	applied, err := h.applier.Apply(ctx, models.MergeEdge{
		DeprecatedTeamID: req.DeprecatedTeamID,
		CanonicalTeamID:  req.CanonicalTeamID,
		CreatedBy:        req.CreatedBy,
		Reason:           req.Reason,
		Confidence:       req.Confidence,
	}, false)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, applied)
}

// SuggestionsResponse is a scan result
type SuggestionsResponse struct {
	Suggestions []models.MergeSuggestion `json:"suggestions"`
	Stats       mergesignal.ScanStats    `json:"stats"`
}

// Suggestions scans one cohort filter and returns suggestions without
// applying any of them.
func (h *Handler) Suggestions(c echo.Context) error {
	ctx := c.Request().Context()

	filter := models.TeamFilter{
		Gender: resolver.GenderFromHint(c.QueryParam("gender")),
		Region: strings.ToLower(strings.TrimSpace(c.QueryParam("region"))),
	}
	if raw := c.QueryParam("birth_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid birth_year %q", raw)
		}
		filter.BirthYear = year
	}
	if filter.BirthYear == 0 && filter.Gender == models.GenderUnknown && filter.Region == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "at least one of birth_year, gender or region is required")
	}

	suggestions, stats, err := h.scanner.Scan(ctx, filter)
	if err != nil {
		return err
	}
	if suggestions == nil {
		suggestions = []models.MergeSuggestion{}
	}

	return c.JSON(http.StatusOK, SuggestionsResponse{Suggestions: suggestions, Stats: stats})
}

// Lineage returns the ids merged into a team, directly or transitively
func (h *Handler) Lineage(c echo.Context) error {
	if h.lineage == nil {
		return httperror.NewHTTPError(http.StatusNotImplemented, "merge lineage graph is not enabled")
	}

	ids, err := h.lineage.Lineage(c.Request().Context(), c.Param("teamId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"team_id": c.Param("teamId"),
		"merged":  ids,
	})
}
