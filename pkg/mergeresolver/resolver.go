// Package mergeresolver holds the deprecated -> canonical team map in memory
// and rewrites team ids before anything is aggregated by team identity.
//
// The map is loaded as an immutable snapshot and swapped atomically, so
// lookups never block and a refresh may run in the middle of a batch. Chains
// (A -> B -> C) are collapsed to their root at load time; a cycle fails the
// load and keeps the previous snapshot.
package mergeresolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"

	"github.com/Ramsey-B/thistle/pkg/fingerprint"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

var (
	// ErrCycle means the merge edges loop back on themselves.
	ErrCycle = errors.New("merge edge cycle")
	// ErrConflictingEdge means one deprecated team points at two targets.
	ErrConflictingEdge = errors.New("conflicting merge edges")
)

// CycleError names the teams in a cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// EdgeSource lists every merge edge.
type EdgeSource interface {
	ListMergeEdges(ctx context.Context) ([]models.MergeEdge, error)
}

type snapshot struct {
	canonical map[string]string
	version   string
	loadedAt  time.Time
}

// Resolver maps team ids to canonical team ids.
type Resolver struct {
	log    ectologger.Logger
	source EdgeSource
	clock  clockwork.Clock

	refreshMu sync.Mutex
	snap      atomic.Pointer[snapshot]
}

// New creates a resolver with an empty map. Call Refresh to load it.
func New(log ectologger.Logger, source EdgeSource, clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &Resolver{
		log:    log,
		source: source,
		clock:  clock,
	}
	r.snap.Store(&snapshot{
		canonical: map[string]string{},
		version:   fingerprint.Pairs(nil),
	})
	return r
}

// Refresh reloads the edges and swaps in a new snapshot. It is idempotent:
// reloading unchanged edges leaves Version unchanged. On error the previous
// snapshot stays in place.
func (r *Resolver) Refresh(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "mergeresolver.Resolver.Refresh")
	defer span.End()

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	log := r.log.WithContext(ctx)

	edges, err := r.source.ListMergeEdges(ctx)
	if err != nil {
		return models.StoreUnavailable("list merge edges", err)
	}

	canonical, err := Flatten(edges)
	if err != nil {
		log.WithError(err).Error("Refusing to load merge map")
		return err
	}

	next := &snapshot{
		canonical: canonical,
		version:   fingerprint.Pairs(canonical),
		loadedAt:  r.clock.Now().UTC(),
	}
	prev := r.snap.Swap(next)

	log.WithFields(map[string]any{
		"edges":   len(canonical),
		"version": next.version,
		"changed": prev.version != next.version,
	}).Info("Merge map loaded")
	return nil
}

// Flatten resolves every edge to the root of its chain.
func Flatten(edges []models.MergeEdge) (map[string]string, error) {
	next := make(map[string]string, len(edges))
	for _, e := range edges {
		if e.DeprecatedTeamID == "" || e.CanonicalTeamID == "" {
			continue
		}
		if prev, ok := next[e.DeprecatedTeamID]; ok && prev != e.CanonicalTeamID {
			return nil, fmt.Errorf("%w: %s -> %s and %s", ErrConflictingEdge, e.DeprecatedTeamID, prev, e.CanonicalTeamID)
		}
		next[e.DeprecatedTeamID] = e.CanonicalTeamID
	}

	roots := make(map[string]string, len(next))
	for start := range next {
		if _, done := roots[start]; done {
			continue
		}

		var path []string
		seen := map[string]bool{}
		id := start
		for {
			if root, done := roots[id]; done {
				id = root
				break
			}
			to, ok := next[id]
			if !ok {
				break
			}
			if seen[id] {
				return nil, &CycleError{Path: append(path, id)}
			}
			seen[id] = true
			path = append(path, id)
			id = to
		}

		for _, p := range path {
			roots[p] = id
		}
	}
	return roots, nil
}

// Resolve returns the canonical id for id, or id itself when it was never
// deprecated.
func (r *Resolver) Resolve(id string) string {
	if to, ok := r.snap.Load().canonical[id]; ok {
		return to
	}
	return id
}

// ResolveIDs resolves each id, preserving order.
func (r *Resolver) ResolveIDs(ids []string) []string {
	snap := r.snap.Load()
	out := make([]string, len(ids))
	for i, id := range ids {
		if to, ok := snap.canonical[id]; ok {
			out[i] = to
		} else {
			out[i] = id
		}
	}
	return out
}

// ResolveBulk returns copies of rows with every string value in keyColumns
// resolved. Input rows are not modified. All rows see the same snapshot.
func (r *Resolver) ResolveBulk(rows []map[string]any, keyColumns ...string) []map[string]any {
	snap := r.snap.Load()
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		for _, col := range keyColumns {
			switch v := cp[col].(type) {
			case string:
				if to, ok := snap.canonical[v]; ok {
					cp[col] = to
				}
			case *string:
				if v != nil {
					if to, ok := snap.canonical[*v]; ok {
						cp[col] = &to
					}
				}
			}
		}
		out[i] = cp
	}
	return out
}

// Version is a content hash of the current map. It changes if and only if the
// map changes.
func (r *Resolver) Version() string {
	return r.snap.Load().version
}

// Len returns the number of deprecated teams.
func (r *Resolver) Len() int {
	return len(r.snap.Load().canonical)
}

// LoadedAt returns when the current snapshot was loaded, zero before the
// first Refresh.
func (r *Resolver) LoadedAt() time.Time {
	return r.snap.Load().loadedAt
}

// IsDeprecated reports whether id has been merged into another team.
func (r *Resolver) IsDeprecated(id string) bool {
	_, ok := r.snap.Load().canonical[id]
	return ok
}

// Pairs returns a copy of the flattened map.
func (r *Resolver) Pairs() map[string]string {
	snap := r.snap.Load()
	out := make(map[string]string, len(snap.canonical))
	for k, v := range snap.canonical {
		out[k] = v
	}
	return out
}
