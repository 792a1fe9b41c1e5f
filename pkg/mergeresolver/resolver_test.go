package mergeresolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/models"
)

type fakeEdges struct {
	mu    sync.Mutex
	edges []models.MergeEdge
	err   error
}

func (f *fakeEdges) ListMergeEdges(_ context.Context) ([]models.MergeEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.MergeEdge(nil), f.edges...), nil
}

func (f *fakeEdges) set(edges ...models.MergeEdge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = edges
}

func edge(from, to string) models.MergeEdge {
	return models.MergeEdge{DeprecatedTeamID: from, CanonicalTeamID: to, CreatedBy: "test", Reason: "duplicate"}
}

func newTestResolver(t *testing.T, edges ...models.MergeEdge) (*Resolver, *fakeEdges, *clockwork.FakeClock) {
	t.Helper()
	src := &fakeEdges{edges: edges}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	log := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	r := New(log, src, clock)
	require.NoError(t, r.Refresh(context.Background()))
	return r, src, clock
}

func TestResolver_Resolve(t *testing.T) {
	r, _, clock := newTestResolver(t, edge("a", "b"), edge("c", "d"))

	assert.Equal(t, "b", r.Resolve("a"))
	assert.Equal(t, "d", r.Resolve("c"))
	assert.Equal(t, "b", r.Resolve("b"), "canonical ids map to themselves")
	assert.Equal(t, "zzz", r.Resolve("zzz"), "unknown ids are unchanged")
	assert.True(t, r.IsDeprecated("a"))
	assert.False(t, r.IsDeprecated("b"))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, clock.Now(), r.LoadedAt())
}

func TestResolver_EmptyBeforeRefresh(t *testing.T) {
	log := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	r := New(log, &fakeEdges{}, nil)

	assert.Equal(t, "a", r.Resolve("a"))
	assert.Zero(t, r.Len())
	assert.True(t, r.LoadedAt().IsZero())
	assert.NotEmpty(t, r.Version())
}

func TestResolver_TransitiveChains(t *testing.T) {
	r, _, _ := newTestResolver(t, edge("a", "b"), edge("b", "c"), edge("c", "d"), edge("x", "b"))

	for _, id := range []string{"a", "b", "c", "x"} {
		assert.Equal(t, "d", r.Resolve(id), id)
	}
	assert.Equal(t, "d", r.Resolve("d"))
}

func TestFlatten_Errors(t *testing.T) {
	tests := []struct {
		name  string
		edges []models.MergeEdge
		want  error
	}{
		{"two node cycle", []models.MergeEdge{edge("a", "b"), edge("b", "a")}, ErrCycle},
		{"self loop", []models.MergeEdge{edge("a", "a")}, ErrCycle},
		{"long cycle", []models.MergeEdge{edge("a", "b"), edge("b", "c"), edge("c", "a"), edge("x", "a")}, ErrCycle},
		{"two targets", []models.MergeEdge{edge("a", "b"), edge("a", "c")}, ErrConflictingEdge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Flatten(tt.edges)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("duplicate identical edges are fine", func(t *testing.T) {
		m, err := Flatten([]models.MergeEdge{edge("a", "b"), edge("a", "b")})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "b"}, m)
	})
}

func TestResolver_RefreshKeepsSnapshotOnError(t *testing.T) {
	r, src, _ := newTestResolver(t, edge("a", "b"))
	version := r.Version()

	src.set(edge("a", "b"), edge("b", "a"))
	err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, "b", r.Resolve("a"))
	assert.Equal(t, version, r.Version())

	src.err = errors.New("connection reset")
	err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, version, r.Version())
}

func TestResolver_Version(t *testing.T) {
	r, src, _ := newTestResolver(t, edge("a", "b"), edge("c", "d"))
	first := r.Version()

	t.Run("refresh without changes is idempotent", func(t *testing.T) {
		require.NoError(t, r.Refresh(context.Background()))
		assert.Equal(t, first, r.Version())
	})

	t.Run("edge order does not matter", func(t *testing.T) {
		src.set(edge("c", "d"), edge("a", "b"))
		require.NoError(t, r.Refresh(context.Background()))
		assert.Equal(t, first, r.Version())
	})

	t.Run("one changed edge changes the version", func(t *testing.T) {
		src.set(edge("a", "b"), edge("c", "e"))
		require.NoError(t, r.Refresh(context.Background()))
		assert.NotEqual(t, first, r.Version())
	})

	t.Run("same contents from another resolver give the same version", func(t *testing.T) {
		other, _, _ := newTestResolver(t, edge("c", "e"), edge("a", "b"))
		assert.Equal(t, r.Version(), other.Version())
	})

	t.Run("edge metadata is not part of the version", func(t *testing.T) {
		e := edge("a", "b")
		e.Reason = "manual"
		a, _, _ := newTestResolver(t, e)
		b, _, _ := newTestResolver(t, edge("a", "b"))
		assert.Equal(t, a.Version(), b.Version())
	})
}

func TestResolver_ResolveBulk(t *testing.T) {
	r, _, _ := newTestResolver(t, edge("a", "b"), edge("x", "y"))

	home := "x"
	rows := []map[string]any{
		{"team_id": "a", "opponent_id": "x", "goals": 3},
		{"team_id": "b", "opponent_id": "q", "goals": 1},
		{"team_id": "a", "opponent_id": &home},
		{"goals": 0},
	}

	out := r.ResolveBulk(rows, "team_id", "opponent_id")
	require.Len(t, out, 4)

	assert.Equal(t, map[string]any{"team_id": "b", "opponent_id": "y", "goals": 3}, out[0])
	assert.Equal(t, map[string]any{"team_id": "b", "opponent_id": "q", "goals": 1}, out[1])
	assert.Equal(t, "y", *out[2]["opponent_id"].(*string))
	assert.Equal(t, map[string]any{"goals": 0}, out[3])

	// input untouched
	assert.Equal(t, "a", rows[0]["team_id"])
	assert.Equal(t, "x", home)

	t.Run("only named columns are resolved", func(t *testing.T) {
		out := r.ResolveBulk(rows[:1], "team_id")
		assert.Equal(t, "x", out[0]["opponent_id"])
	})
}

func TestResolver_ResolveIDs(t *testing.T) {
	r, _, _ := newTestResolver(t, edge("a", "b"))

	assert.Equal(t, []string{"b", "b", "c"}, r.ResolveIDs([]string{"a", "b", "c"}))
	assert.Empty(t, r.ResolveIDs(nil))
}

func TestResolver_ConcurrentRefresh(t *testing.T) {
	r, _, _ := newTestResolver(t, edge("a", "b"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Refresh(context.Background()))
		}()
		go func() {
			defer wg.Done()
			assert.Equal(t, "b", r.Resolve("a"))
		}()
	}
	wg.Wait()
}

func TestResolver_Pairs(t *testing.T) {
	r, _, _ := newTestResolver(t, edge("a", "b"), edge("b", "c"))

	pairs := r.Pairs()
	assert.Equal(t, map[string]string{"a": "c", "b": "c"}, pairs)

	pairs["a"] = "zzz"
	assert.Equal(t, "c", r.Resolve("a"))
}
