// Package processor runs the single-writer batch job: ingest records are
// resolved to teams, new teams are created for unmatched imports, and cohorts
// are periodically scanned for duplicates.
package processor

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	tcontext "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/events"
	"github.com/Ramsey-B/thistle/pkg/fingerprint"
	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/redis"
	"github.com/Ramsey-B/thistle/pkg/resolver"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// MessageSource is the ingest transport; *kafka.Consumer satisfies it.
type MessageSource interface {
	FetchBatch(ctx context.Context, max int, wait time.Duration) ([]kafka.IncomingMessage, error)
	Commit(ctx context.Context, msgs []kafka.IncomingMessage) error
}

// Resolver maps one record to an outcome.
type Resolver interface {
	Resolve(ctx context.Context, rec models.IngestRecord) (resolver.Outcome, error)
}

// TeamStore creates teams for unmatched imports.
type TeamStore interface {
	Create(ctx context.Context, in models.NewTeam) (*models.Team, error)
}

// AliasStore writes the direct alias of a newly created team.
type AliasStore interface {
	UpsertAlias(ctx context.Context, alias models.ExternalIdentifier) error
}

// Canonical is the merge map snapshot.
type Canonical interface {
	Refresh(ctx context.Context) error
	Resolve(id string) string
	Version() string
	Len() int
}

// ResolutionCache short-circuits accepted resolutions.
type ResolutionCache interface {
	Get(ctx context.Context, version, provider, externalID string) (*redis.CachedResolution, error)
	Set(ctx context.Context, version, provider, externalID string, res redis.CachedResolution) error
}

// Deduper drops records already processed. Forget releases a fingerprint
// whose batch never committed.
type Deduper interface {
	FirstSeen(ctx context.Context, fingerprint string) (bool, error)
	Forget(ctx context.Context, fingerprint string) error
}

// DeadLetters receives records that can never be processed.
type DeadLetters interface {
	Add(ctx context.Context, entry *redis.DLQEntry) (string, error)
}

// Options bundles the optional collaborators. Nil fields are skipped.
type Options struct {
	Cache       ResolutionCache
	Deduper     Deduper
	DeadLetters DeadLetters
	BatchSize   int
	BatchWait   time.Duration
}

// BatchStats summarizes one ingest batch.
type BatchStats struct {
	Fetched    int
	Invalid    int
	Duplicates int
	CacheHits  int
	Accepted   int
	Review     int
	Pending    int
	Conflicts  int
	Created    int
	Unparsable int
}

// Processor resolves ingest batches.
type Processor struct {
	logger   ectologger.Logger
	source   MessageSource
	resolver Resolver
	teams    TeamStore
	aliases  AliasStore
	canon    Canonical
	emitter  *events.Emitter
	clock    clockwork.Clock
	opts     Options

	lastVersion string
}

// NewProcessor creates a new ingest processor
func NewProcessor(
	logger ectologger.Logger,
	source MessageSource,
	res Resolver,
	teams TeamStore,
	aliases AliasStore,
	canon Canonical,
	emitter *events.Emitter,
	clock clockwork.Clock,
	opts Options,
) *Processor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.BatchWait <= 0 {
		opts.BatchWait = time.Second
	}
	return &Processor{
		logger:   logger,
		source:   source,
		resolver: res,
		teams:    teams,
		aliases:  aliases,
		canon:    canon,
		emitter:  emitter,
		clock:    clock,
		opts:     opts,
	}
}

// RefreshResolver reloads the merge map and publishes a version change.
func (p *Processor) RefreshResolver(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.RefreshResolver")
	defer span.End()

	if err := p.canon.Refresh(ctx); err != nil {
		return err
	}
	version := p.canon.Version()
	metrics.ResolverEdges.Set(float64(p.canon.Len()))
	if version == p.lastVersion {
		return nil
	}

	previous := p.lastVersion
	p.lastVersion = version
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"previous_version": previous,
		"version":          version,
		"edges":            p.canon.Len(),
	}).Info("Merge resolver version changed")
	_ = p.emitter.EmitResolverVersion(ctx, previous, version, p.canon.Len())
	return nil
}

// ProcessBatch fetches, resolves and commits one batch. A store failure
// aborts the batch before commit so the records are redelivered.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchStats, error) {
	ctx = tcontext.SetRunID(ctx, uuid.NewString())
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessBatch")
	defer span.End()

	var stats BatchStats
	start := p.clock.Now()
	log := p.logger.WithContext(ctx).WithField("run_id", tcontext.GetRunID(ctx))

	if err := p.RefreshResolver(ctx); err != nil {
		log.WithError(err).Error("Failed to refresh merge resolver")
		return stats, err
	}

	msgs, err := p.source.FetchBatch(ctx, p.opts.BatchSize, p.opts.BatchWait)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(msgs)
	if len(msgs) == 0 {
		return stats, nil
	}

	resolved := make([]events.TeamResolvedEvent, 0, len(msgs))
	var marked []string
	for _, msg := range msgs {
		ev, ok, err := p.processMessage(ctx, msg, &stats, &marked)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Batch aborted, records will be redelivered")
			metrics.BatchRecordsTotal.WithLabelValues("retried").Add(float64(len(msgs)))
			p.forget(ctx, marked)
			return stats, err
		}
		if ok {
			resolved = append(resolved, ev)
		}
	}

	_ = p.emitter.EmitResolutions(ctx, resolved)

	if err := p.source.Commit(ctx, msgs); err != nil {
		p.forget(ctx, marked)
		return stats, err
	}

	metrics.RecordBatchStage("ingest", p.clock.Since(start).Seconds())
	metrics.BatchRecordsTotal.WithLabelValues("processed").Add(float64(len(msgs)))
	log.WithFields(map[string]any{
		"fetched":    stats.Fetched,
		"accepted":   stats.Accepted,
		"review":     stats.Review,
		"created":    stats.Created,
		"duplicates": stats.Duplicates,
		"invalid":    stats.Invalid,
		"cache_hits": stats.CacheHits,
		"elapsed":    p.clock.Since(start).String(),
	}).Info("Ingest batch processed")
	return stats, nil
}

// forget releases the dedupe marks of an uncommitted batch so redelivered
// records are processed again.
func (p *Processor) forget(ctx context.Context, fingerprints []string) {
	if p.opts.Deduper == nil {
		return
	}
	for _, fp := range fingerprints {
		if err := p.opts.Deduper.Forget(context.WithoutCancel(ctx), fp); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithField("fingerprint", fp).Warn("Failed to release dedupe fingerprint")
		}
	}
}

// processMessage returns the resolution event for msg, false when the record
// was skipped, or a store error that must abort the batch.
// Fingerprints it marks as seen are appended to marked.
func (p *Processor) processMessage(ctx context.Context, msg kafka.IncomingMessage, stats *BatchStats, marked *[]string) (events.TeamResolvedEvent, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.processMessage")
	defer span.End()

	rec, err := msg.ParseIngestRecord()
	if err != nil {
		stats.Invalid++
		p.deadLetter(ctx, msg, err)
		metrics.BatchRecordsTotal.WithLabelValues("invalid").Inc()
		return events.TeamResolvedEvent{}, false, nil
	}

	if p.opts.Deduper != nil {
		fp := fingerprint.Generate(map[string]any{
			"provider":    rec.Provider,
			"external_id": rec.ExternalID,
			"raw_name":    rec.RawName,
			"club_hint":   rec.ClubHint,
			"age_hint":    rec.AgeHint,
			"gender_hint": rec.GenderHint,
			"region_hint": rec.RegionHint,
			"league":      rec.League,
		})
		first, err := p.opts.Deduper.FirstSeen(ctx, fp)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("Dedupe check failed, processing record")
		} else if !first {
			stats.Duplicates++
			metrics.BatchRecordsTotal.WithLabelValues("duplicate").Inc()
			return events.TeamResolvedEvent{}, false, nil
		} else {
			*marked = append(*marked, fp)
		}
	}

	if ev, ok := p.fromCache(ctx, rec); ok {
		stats.CacheHits++
		stats.Accepted++
		return ev, true, nil
	}

	out, err := p.resolver.Resolve(ctx, rec)
	if err != nil {
		return events.TeamResolvedEvent{}, false, err
	}
	metrics.RecordResolution(string(out.Decision), out.Tier.String())
	if out.Veto != nil {
		metrics.RecordVeto("resolve", out.Veto.Facet)
	}
	if out.Tier == resolver.TierFuzzy && out.Confidence > 0 {
		metrics.ResolutionConfidence.Observe(out.Confidence)
	}

	switch out.Decision {
	case resolver.DecisionAccept:
		stats.Accepted++
		p.toCache(ctx, rec, out)
	case resolver.DecisionReview:
		stats.Review++
		_ = p.emitter.EmitReview(ctx, models.ReviewQueueEntry{
			Provider:       rec.Provider,
			ExternalID:     rec.ExternalID,
			ProposedTeamID: out.TeamID,
			Confidence:     out.Confidence,
			RawName:        rec.RawName,
			Priority:       out.Priority,
			Status:         models.ReviewStatusPending,
			CreatedAt:      p.clock.Now().UTC(),
		})
	case resolver.DecisionPendingReview:
		stats.Pending++
	case resolver.DecisionConflict:
		stats.Conflicts++
	case resolver.DecisionReject:
		if !out.CreatesTeam() {
			stats.Unparsable++
			break
		}
		team, err := p.createTeam(ctx, rec, out)
		if err != nil {
			return events.TeamResolvedEvent{}, false, err
		}
		if team != nil {
			stats.Created++
			out.TeamID = team.ID
		}
	}

	return events.TeamResolvedEvent{
		Provider:   rec.Provider,
		ExternalID: rec.ExternalID,
		TeamID:     out.TeamID,
		Decision:   string(out.Decision),
		Tier:       out.Tier.String(),
		Confidence: out.Confidence,
		Reason:     out.Reason,
	}, true, nil
}

// createTeam creates a team for an unmatched import along with its direct
// alias. A concurrent writer that aliased the key first wins and no team
// is returned.
func (p *Processor) createTeam(ctx context.Context, rec models.IngestRecord, out resolver.Outcome) (*models.Team, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.createTeam")
	defer span.End()

	in := models.NewTeam{
		Name:      rec.RawName,
		ClubName:  out.Parsed.Club,
		BirthYear: out.Cohort.BirthYear,
		Gender:    out.Cohort.Gender,
	}
	if rec.ClubHint != "" {
		in.ClubName = rec.ClubHint
	}
	if out.Cohort.Region != "" {
		region := out.Cohort.Region
		in.RegionCode = &region
	}
	if rec.League != "" {
		league := rec.League
		in.League = &league
	}

	team, err := p.teams.Create(ctx, in)
	if err != nil {
		return nil, models.StoreUnavailable("create team", err)
	}

	err = p.aliases.UpsertAlias(ctx, models.ExternalIdentifier{
		Provider:     rec.Provider,
		ExternalID:   rec.ExternalID,
		TeamID:       team.ID,
		Confidence:   1.0,
		ReviewStatus: models.ReviewStatusApproved,
		MatchMethod:  models.MatchMethodDirect,
	})
	var conflict *models.AliasConflictError
	switch {
	case errors.As(err, &conflict):
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"provider":         rec.Provider,
			"external_id":      rec.ExternalID,
			"existing_team_id": conflict.Existing.TeamID,
			"new_team_id":      team.ID,
		}).Warn("Alias written concurrently, new team left unreferenced")
		return nil, nil
	case err != nil:
		return nil, models.StoreUnavailable("upsert alias", err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"team_id":     team.ID,
		"provider":    rec.Provider,
		"external_id": rec.ExternalID,
		"birth_year":  team.BirthYear,
		"gender":      team.Gender,
	}).Info("Created team for unmatched import")
	_ = p.emitter.EmitTeamCreated(ctx, *team, rec.Provider, rec.ExternalID)
	return team, nil
}

func (p *Processor) fromCache(ctx context.Context, rec models.IngestRecord) (events.TeamResolvedEvent, bool) {
	if p.opts.Cache == nil {
		return events.TeamResolvedEvent{}, false
	}
	cached, err := p.opts.Cache.Get(ctx, p.canon.Version(), rec.Provider, rec.ExternalID)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Resolution cache read failed")
		return events.TeamResolvedEvent{}, false
	}
	metrics.RecordCacheLookup(cached != nil)
	if cached == nil {
		return events.TeamResolvedEvent{}, false
	}
	metrics.RecordResolution(string(resolver.DecisionAccept), cached.Tier)
	return events.TeamResolvedEvent{
		Provider:   rec.Provider,
		ExternalID: rec.ExternalID,
		TeamID:     p.canon.Resolve(cached.TeamID),
		Decision:   string(resolver.DecisionAccept),
		Tier:       cached.Tier,
		Confidence: cached.Confidence,
		Reason:     "cached",
	}, true
}

func (p *Processor) toCache(ctx context.Context, rec models.IngestRecord, out resolver.Outcome) {
	if p.opts.Cache == nil {
		return
	}
	err := p.opts.Cache.Set(ctx, p.canon.Version(), rec.Provider, rec.ExternalID, redis.CachedResolution{
		TeamID:     out.TeamID,
		Tier:       out.Tier.String(),
		Confidence: out.Confidence,
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Resolution cache write failed")
	}
}

func (p *Processor) deadLetter(ctx context.Context, msg kafka.IncomingMessage, cause error) {
	log := p.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})
	if p.opts.DeadLetters == nil {
		log.Warn("Dropping invalid ingest record")
		return
	}
	_, err := p.opts.DeadLetters.Add(ctx, &redis.DLQEntry{
		Topic:        msg.Topic,
		Partition:    msg.Partition,
		Offset:       msg.Offset,
		Payload:      string(msg.Value),
		ErrorMessage: cause.Error(),
		CreatedAt:    p.clock.Now().UTC(),
		TraceID:      tracing.GetTraceID(ctx),
	})
	if err != nil {
		log.WithError(err).Error("Failed to dead-letter invalid ingest record")
		return
	}
	log.Warn("Invalid ingest record dead-lettered")
}
