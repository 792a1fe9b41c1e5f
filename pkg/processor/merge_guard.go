package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Ramsey-B/thistle/pkg/features"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/nameparser"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// TeamReader loads one team; *team.Repository satisfies it.
type TeamReader interface {
	GetByID(ctx context.Context, id string) (*models.Team, error)
}

// MergeMap is the flattened deprecated -> root map; *mergeresolver.Resolver
// satisfies it.
type MergeMap interface {
	Refresh(ctx context.Context) error
	Resolve(id string) string
	Pairs() map[string]string
}

// VetoGuard rejects a merge when any team that would end up under the root
// vetoes any team already there. Merges are applied one at a time, so
// without it two teams that veto each other can still meet through a third.
type VetoGuard struct {
	teams     TeamReader
	merges    MergeMap
	extractor *features.Extractor
}

// NewVetoGuard creates a guard over the current merge map.
func NewVetoGuard(teams TeamReader, merges MergeMap, parser *nameparser.Parser) *VetoGuard {
	return &VetoGuard{
		teams:     teams,
		merges:    merges,
		extractor: features.NewExtractor(parser),
	}
}

// Check returns an error wrapping models.ErrMergeVetoed when merging
// deprecatedID into canonicalID would join vetoed names. Merges the edge
// store will refuse anyway (self merges, already deprecated teams) pass. The
// map is reloaded first so merges made by other processes are seen.
func (g *VetoGuard) Check(ctx context.Context, deprecatedID, canonicalID string) error {
	ctx, span := tracing.StartSpan(ctx, "processor.VetoGuard.Check")
	defer span.End()

	if err := g.merges.Refresh(ctx); err != nil {
		return err
	}

	root := g.merges.Resolve(canonicalID)
	if root == deprecatedID || g.merges.Resolve(deprecatedID) != deprecatedID {
		return nil
	}

	pairs := g.merges.Pairs()
	incoming := members(deprecatedID, pairs)
	existing := members(root, pairs)

	names := make(map[string]features.Features, len(incoming)+len(existing))
	for _, id := range append(append([]string{}, incoming...), existing...) {
		t, err := g.teams.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrStoreUnavailable) {
				return err
			}
			return fmt.Errorf("%w: team %s", models.ErrNotFound, id)
		}
		names[id] = g.extractor.Extract(t.Name)
	}

	for _, a := range incoming {
		for _, b := range existing {
			if veto := features.Compare(names[a], names[b]); veto != nil {
				return fmt.Errorf("%w: team %s vs %s under %s: %s", models.ErrMergeVetoed, a, b, root, veto.Reason())
			}
		}
	}
	return nil
}

// members returns root and every team that resolves to it, root first.
func members(root string, pairs map[string]string) []string {
	var merged []string
	for from, to := range pairs {
		if to == root {
			merged = append(merged, from)
		}
	}
	sort.Strings(merged)
	return append([]string{root}, merged...)
}
