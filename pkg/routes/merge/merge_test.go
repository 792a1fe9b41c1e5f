package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/mergesignal"
	"github.com/Ramsey-B/thistle/pkg/middleware"
	"github.com/Ramsey-B/thistle/pkg/models"
)

const (
	teamA = "6f1c2d3e-0000-4000-8000-000000000001"
	teamB = "6f1c2d3e-0000-4000-8000-000000000002"
)

type fakeEdges struct {
	edges []models.MergeEdge
}

func (f *fakeEdges) ListMergeEdges(context.Context) ([]models.MergeEdge, error) {
	return f.edges, nil
}

type fakeApplier struct {
	err     error
	applied []models.MergeEdge
}

func (f *fakeApplier) Apply(_ context.Context, edge models.MergeEdge, auto bool) (*models.MergeEdge, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.applied = append(f.applied, edge)
	return &edge, nil
}

type fakeScanner struct {
	filter models.TeamFilter
}

func (f *fakeScanner) Scan(_ context.Context, filter models.TeamFilter) ([]models.MergeSuggestion, mergesignal.ScanStats, error) {
	f.filter = filter
	return nil, mergesignal.ScanStats{Cohorts: 2}, nil
}

type fakeLineage struct{}

func (fakeLineage) Lineage(_ context.Context, teamID string) ([]string, error) {
	return []string{teamID + "-old"}, nil
}

func newServer(applier Applier, scanner Scanner, lineage Lineage) *echo.Echo {
	log := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(log)
	NewHandler(log, &fakeEdges{}, applier, scanner, lineage).Register(e.Group("/api/v1/merges"))
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMergeRoutes_Apply(t *testing.T) {
	valid := fmt.Sprintf(`{"deprecated_team_id":%q,"canonical_team_id":%q,"reason":"same club","created_by":"ana"}`, teamB, teamA)

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"applied", valid, nil, http.StatusCreated},
		{"self merge", fmt.Sprintf(`{"deprecated_team_id":%q,"canonical_team_id":%q,"reason":"x","created_by":"ana"}`, teamA, teamA), nil, http.StatusBadRequest},
		{"missing reason", fmt.Sprintf(`{"deprecated_team_id":%q,"canonical_team_id":%q,"created_by":"ana"}`, teamB, teamA), nil, http.StatusBadRequest},
		{"not a uuid", `{"deprecated_team_id":"x","canonical_team_id":"y","reason":"r","created_by":"ana"}`, nil, http.StatusBadRequest},
		{"conflict", valid, fmt.Errorf("%w: already merged", models.ErrMergeConflict), http.StatusConflict},
		{"cycle", valid, fmt.Errorf("%w: resolves to itself", models.ErrInvalidMerge), http.StatusUnprocessableEntity},
		{"store down", valid, models.StoreUnavailable("apply merge", fmt.Errorf("dial tcp")), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &fakeApplier{err: tt.err}
			rec := do(newServer(applier, &fakeScanner{}, nil), http.MethodPost, "/api/v1/merges", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusCreated {
				require.Len(t, applier.applied, 1)
				assert.Equal(t, teamB, applier.applied[0].DeprecatedTeamID)
				assert.Equal(t, "ana", applier.applied[0].CreatedBy)
			}
		})
	}
}

func TestMergeRoutes_Suggestions(t *testing.T) {
	scanner := &fakeScanner{}
	e := newServer(&fakeApplier{}, scanner, nil)

	rec := do(e, http.MethodGet, "/api/v1/merges/suggestions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/merges/suggestions?birth_year=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/merges/suggestions?birth_year=2012&gender=G&region=TX", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TeamFilter{BirthYear: 2012, Gender: models.GenderGirls, Region: "tx"}, scanner.filter)

	var body SuggestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Suggestions)
	assert.Equal(t, 2, body.Stats.Cohorts)
}

func TestMergeRoutes_Lineage(t *testing.T) {
	rec := do(newServer(&fakeApplier{}, &fakeScanner{}, nil), http.MethodGet, "/api/v1/merges/lineage/"+teamA, "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = do(newServer(&fakeApplier{}, &fakeScanner{}, fakeLineage{}), http.MethodGet, "/api/v1/merges/lineage/"+teamA, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), teamA+"-old")
}
