package processor

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"

	"github.com/Ramsey-B/thistle/pkg/events"
	"github.com/Ramsey-B/thistle/pkg/mergesignal"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// EdgeWriter persists merges; *mergeedge.Repository satisfies it.
type EdgeWriter interface {
	Apply(ctx context.Context, edge models.MergeEdge) (*models.MergeEdge, error)
}

// LineageRecorder mirrors merges into the lineage graph.
type LineageRecorder interface {
	RecordMerges(ctx context.Context, edges []models.MergeEdge) error
}

// Scanner finds duplicate candidates; *mergesignal.Engine satisfies it.
type Scanner interface {
	Scan(ctx context.Context, filter models.TeamFilter) ([]models.MergeSuggestion, mergesignal.ScanStats, error)
}

// MergeChecker vetoes merges before they are written; *VetoGuard satisfies it.
type MergeChecker interface {
	Check(ctx context.Context, deprecatedID, canonicalID string) error
}

// MergeExecutor applies merges and propagates them: the edge is written, the
// lineage graph and event stream are told, and the resolver is refreshed.
type MergeExecutor struct {
	logger  ectologger.Logger
	edges   EdgeWriter
	guard   MergeChecker
	lineage LineageRecorder
	canon   Canonical
	emitter *events.Emitter
	clock   clockwork.Clock
}

// NewMergeExecutor creates a merge executor. guard and lineage may be nil.
func NewMergeExecutor(
	logger ectologger.Logger,
	edges EdgeWriter,
	guard MergeChecker,
	lineage LineageRecorder,
	canon Canonical,
	emitter *events.Emitter,
	clock clockwork.Clock,
) *MergeExecutor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MergeExecutor{
		logger:  logger,
		edges:   edges,
		guard:   guard,
		lineage: lineage,
		canon:   canon,
		emitter: emitter,
		clock:   clock,
	}
}

// Apply writes one merge. Lineage and event failures are logged; the edge
// table is the source of truth.
func (m *MergeExecutor) Apply(ctx context.Context, edge models.MergeEdge, auto bool) (*models.MergeEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.MergeExecutor.Apply")
	defer span.End()

	if m.guard != nil {
		if err := m.guard.Check(ctx, edge.DeprecatedTeamID, edge.CanonicalTeamID); err != nil {
			if errors.Is(err, models.ErrMergeVetoed) {
				metrics.RecordVeto("merge", "transitive")
			}
			return nil, err
		}
	}

	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = m.clock.Now().UTC()
	}
	applied, err := m.edges.Apply(ctx, edge)
	if err != nil {
		return nil, err
	}

	source := "manual"
	if auto {
		source = "auto"
	}
	metrics.MergesAppliedTotal.WithLabelValues(source).Inc()

	if m.lineage != nil {
		if err := m.lineage.RecordMerges(ctx, []models.MergeEdge{*applied}); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithField("deprecated_team_id", applied.DeprecatedTeamID).
				Warn("Failed to record merge lineage")
		}
	}
	_ = m.emitter.EmitMergeApplied(ctx, *applied, auto)

	if err := m.canon.Refresh(ctx); err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to refresh merge resolver after merge")
		return applied, err
	}
	metrics.ResolverEdges.Set(float64(m.canon.Len()))
	return applied, nil
}

// ScanStats summarizes one scan and the merges it applied.
type ScanStats struct {
	mergesignal.ScanStats
	AutoMerged int
	Skipped    int
}

// MergeProcessor scans cohorts for duplicates, publishes suggestions and,
// when enabled, applies auto_merge suggestions.
type MergeProcessor struct {
	logger    ectologger.Logger
	scanner   Scanner
	executor  *MergeExecutor
	emitter   *events.Emitter
	clock     clockwork.Clock
	autoMerge bool
}

// NewMergeProcessor creates a new merge processor
func NewMergeProcessor(
	logger ectologger.Logger,
	scanner Scanner,
	executor *MergeExecutor,
	emitter *events.Emitter,
	clock clockwork.Clock,
	autoMerge bool,
) *MergeProcessor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MergeProcessor{
		logger:    logger,
		scanner:   scanner,
		executor:  executor,
		emitter:   emitter,
		clock:     clock,
		autoMerge: autoMerge,
	}
}

// Run scans the teams matching filter once.
func (p *MergeProcessor) Run(ctx context.Context, filter models.TeamFilter) ([]models.MergeSuggestion, ScanStats, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.MergeProcessor.Run")
	defer span.End()

	start := p.clock.Now()
	log := p.logger.WithContext(ctx)

	suggestions, scanStats, err := p.scanner.Scan(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Merge scan failed")
		return nil, ScanStats{}, err
	}
	stats := ScanStats{ScanStats: scanStats}
	metrics.ScanPairsTotal.Add(float64(scanStats.Pairs))
	for _, s := range suggestions {
		metrics.MergeSuggestionsTotal.WithLabelValues(string(s.Tier)).Inc()
	}
	_ = p.emitter.EmitMergeSuggestions(ctx, suggestions)

	if p.autoMerge {
		for _, s := range suggestions {
			if s.Tier != models.RecommendationAutoMerge {
				continue
			}
			if err := ctx.Err(); err != nil {
				return suggestions, stats, err
			}

			confidence := s.Confidence
			_, err := p.executor.Apply(ctx, models.MergeEdge{
				DeprecatedTeamID: s.DeprecatedTeamID,
				CanonicalTeamID:  s.CanonicalTeamID,
				CreatedBy:        "auto-merge",
				Reason:           "merge signals " + s.Cohort,
				Confidence:       &confidence,
			}, true)
			switch {
			case errors.Is(err, models.ErrMergeConflict), errors.Is(err, models.ErrInvalidMerge),
				errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrMergeVetoed):
				// An earlier merge in this run already moved one of the teams,
				// or its root now holds a name this team vetoes.
				stats.Skipped++
				log.WithError(err).WithFields(map[string]any{
					"deprecated_team_id": s.DeprecatedTeamID,
					"canonical_team_id":  s.CanonicalTeamID,
				}).Info("Skipping auto merge")
			case err != nil:
				return suggestions, stats, err
			default:
				stats.AutoMerged++
			}
		}
	}

	metrics.RecordBatchStage("scan", p.clock.Since(start).Seconds())
	log.WithFields(map[string]any{
		"suggestions": len(suggestions),
		"auto_merged": stats.AutoMerged,
		"skipped":     stats.Skipped,
		"elapsed":     p.clock.Since(start).String(),
	}).Info("Merge run complete")
	return suggestions, stats, nil
}
