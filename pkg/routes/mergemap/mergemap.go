package mergemap

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Snapshot is the loaded merge map; *mergeresolver.Resolver satisfies it.
type Snapshot interface {
	Resolve(id string) string
	Version() string
	Len() int
	LoadedAt() time.Time
}

type Handler struct {
	snapshot Snapshot
}

func NewHandler(snapshot Snapshot) *Handler {
	return &Handler{snapshot: snapshot}
}

// Register registers merge map routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.Version)
	g.GET("/teams/:id", h.Resolve)
}

// VersionResponse describes the loaded merge map
type VersionResponse struct {
	Version  string    `json:"version"`
	Edges    int       `json:"edges"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Version returns the version of the loaded merge map
func (h *Handler) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{
		Version:  h.snapshot.Version(),
		Edges:    h.snapshot.Len(),
		LoadedAt: h.snapshot.LoadedAt(),
	})
}

// ResolveResponse maps a team id to its canonical id
type ResolveResponse struct {
	TeamID      string `json:"team_id"`
	CanonicalID string `json:"canonical_id"`
	Deprecated  bool   `json:"deprecated"`
	Version     string `json:"version"`
}

// Resolve returns the canonical id for a team
func (h *Handler) Resolve(c echo.Context) error {
	id := c.Param("id")
	canonical := h.snapshot.Resolve(id)
	return c.JSON(http.StatusOK, ResolveResponse{
		TeamID:      id,
		CanonicalID: canonical,
		Deprecated:  canonical != id,
		Version:     h.snapshot.Version(),
	})
}
