package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/models"
)

type fakePublisher struct {
	records []kafka.Record
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, records ...kafka.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, records...)
	return nil
}

func newTestEmitter(pub Publisher) *Emitter {
	log := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEmitter(pub, log, clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)))
}

func TestEmitter_Keys(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEmitter(pub)
	ctx := context.Background()

	require.NoError(t, e.EmitResolutions(ctx, []TeamResolvedEvent{{Provider: "gotsport", ExternalID: "1", Decision: "accept"}}))
	require.NoError(t, e.EmitMergeSuggestions(ctx, []models.MergeSuggestion{{CanonicalTeamID: "t1", DeprecatedTeamID: "t2"}}))
	require.NoError(t, e.EmitMergeApplied(ctx, models.MergeEdge{DeprecatedTeamID: "t2", CanonicalTeamID: "t1"}, true))
	require.NoError(t, e.EmitResolverVersion(ctx, "a", "b", 3))
	require.NoError(t, e.EmitReview(ctx, models.ReviewQueueEntry{Provider: "gotsport", ExternalID: "9", Status: models.ReviewStatusApproved}))

	require.Len(t, pub.records, 5)
	tests := []struct {
		key       string
		eventType EventType
	}{
		{"gotsport:1", EventTypeTeamResolved},
		{"t1", EventTypeMergeSuggested},
		{"t1", EventTypeMergeApplied},
		{"resolver", EventTypeResolverVersionChanged},
		{"gotsport:9", EventTypeReviewDecided},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.key, pub.records[i].Key)
		assert.Equal(t, string(tt.eventType), pub.records[i].EventType)
		assert.Equal(t, SchemaVersion, pub.records[i].SchemaVersion)
	}

	resolved := pub.records[0].Payload.(TeamResolvedEvent)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), resolved.Timestamp)
}

func TestEmitter_NilPublisherDrops(t *testing.T) {
	e := newTestEmitter(nil)
	assert.NoError(t, e.EmitMergeApplied(context.Background(), models.MergeEdge{}, false))
}

func TestEmitter_PublishError(t *testing.T) {
	e := newTestEmitter(&fakePublisher{err: errors.New("broker down")})
	assert.Error(t, e.EmitResolverVersion(context.Background(), "a", "b", 1))
}
