// Package events publishes identity lifecycle events
package events

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"

	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is the transport; *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, records ...kafka.Record) error
}

// Emitter handles event emission. A nil publisher drops events, which is how
// the service runs without Kafka.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	clock     clockwork.Clock
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger, clock clockwork.Clock) *Emitter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		clock:     clock,
	}
}

func (e *Emitter) base(t EventType) BaseEvent {
	return BaseEvent{
		EventType:     t,
		SchemaVersion: SchemaVersion,
		Timestamp:     e.clock.Now().UTC(),
	}
}

func (e *Emitter) emit(ctx context.Context, records ...kafka.Record) error {
	if e.publisher == nil || len(records) == 0 {
		return nil
	}
	if err := e.publisher.Publish(ctx, records...); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": records[0].EventType,
			"count":      len(records),
		}).Error("Failed to emit events")
		return err
	}
	return nil
}

func record(key string, t EventType, payload any) kafka.Record {
	return kafka.Record{Key: key, EventType: string(t), SchemaVersion: SchemaVersion, Payload: payload}
}

// EmitResolutions emits one team.resolved event per outcome
func (e *Emitter) EmitResolutions(ctx context.Context, events []TeamResolvedEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolutions")
	defer span.End()

	records := make([]kafka.Record, len(events))
	for i, ev := range events {
		ev.BaseEvent = e.base(EventTypeTeamResolved)
		records[i] = record(ev.Provider+":"+ev.ExternalID, EventTypeTeamResolved, ev)
	}
	return e.emit(ctx, records...)
}

// EmitTeamCreated emits a team.created event
func (e *Emitter) EmitTeamCreated(ctx context.Context, team models.Team, provider, externalID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitTeamCreated")
	defer span.End()

	ev := TeamCreatedEvent{BaseEvent: e.base(EventTypeTeamCreated), Team: team, Provider: provider, ExternalID: externalID}
	return e.emit(ctx, record(team.ID, EventTypeTeamCreated, ev))
}

// EmitReview emits review.queued or review.decided for entry
func (e *Emitter) EmitReview(ctx context.Context, entry models.ReviewQueueEntry) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReview")
	defer span.End()

	t := EventTypeReviewQueued
	if entry.Status != models.ReviewStatusPending && entry.Status != "" {
		t = EventTypeReviewDecided
	}
	ev := ReviewEvent{BaseEvent: e.base(t), Entry: entry}
	return e.emit(ctx, record(entry.Provider+":"+entry.ExternalID, t, ev))
}

// EmitMergeSuggestions emits merge.suggested events in one batch
func (e *Emitter) EmitMergeSuggestions(ctx context.Context, suggestions []models.MergeSuggestion) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMergeSuggestions")
	defer span.End()

	records := make([]kafka.Record, len(suggestions))
	for i, s := range suggestions {
		ev := MergeSuggestedEvent{BaseEvent: e.base(EventTypeMergeSuggested), Suggestion: s}
		records[i] = record(s.CanonicalTeamID, EventTypeMergeSuggested, ev)
	}
	return e.emit(ctx, records...)
}

// EmitMergeApplied emits merge.applied
func (e *Emitter) EmitMergeApplied(ctx context.Context, edge models.MergeEdge, auto bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMergeApplied")
	defer span.End()

	ev := MergeAppliedEvent{BaseEvent: e.base(EventTypeMergeApplied), Edge: edge, Auto: auto}
	return e.emit(ctx, record(edge.CanonicalTeamID, EventTypeMergeApplied, ev))
}

// EmitResolverVersion emits resolver.version_changed
func (e *Emitter) EmitResolverVersion(ctx context.Context, previous, version string, edges int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolverVersion")
	defer span.End()

	ev := ResolverVersionChangedEvent{
		BaseEvent:       e.base(EventTypeResolverVersionChanged),
		PreviousVersion: previous,
		Version:         version,
		Edges:           edges,
	}
	return e.emit(ctx, record("resolver", EventTypeResolverVersionChanged, ev))
}
