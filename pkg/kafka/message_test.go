package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncomingMessage(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	msg := newIncomingMessage(kafka.Message{
		Topic:     "team-ingest",
		Partition: 2,
		Offset:    41,
		Key:       []byte("gotsport:1001"),
		Value:     []byte(`{}`),
		Time:      now,
		Headers: []kafka.Header{
			{Key: HeaderTraceParent, Value: []byte("00-abc-def-01")},
			{Key: "source", Value: []byte("scraper")},
		},
	})

	assert.Equal(t, "gotsport:1001", msg.Key)
	assert.Equal(t, "00-abc-def-01", msg.TraceParent)
	assert.Equal(t, "scraper", msg.Headers["source"])
	assert.Equal(t, int64(41), msg.Offset)
	assert.Equal(t, now, msg.Timestamp)
	assert.Equal(t, int64(41), msg.raw.Offset)
}

func TestIncomingMessage_ParseIngestRecord(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
		check   func(t *testing.T, provider, externalID, raw string)
	}{
		{
			name:  "valid record is trimmed",
			value: `{"provider":" gotsport ","external_id":" 1001 ","raw_name":"Solar SC 2012 Red","gender_hint":"boys"}`,
			check: func(t *testing.T, provider, externalID, raw string) {
				assert.Equal(t, "gotsport", provider)
				assert.Equal(t, "1001", externalID)
				assert.Equal(t, "Solar SC 2012 Red", raw)
			},
		},
		{
			name:  "empty external id still parses",
			value: `{"provider":"gotsport","external_id":"","raw_name":"Solar SC 2012 Red"}`,
			check: func(t *testing.T, _, externalID, _ string) {
				assert.Empty(t, externalID)
			},
		},
		{name: "missing provider", value: `{"external_id":"1","raw_name":"x"}`, wantErr: true},
		{name: "missing name", value: `{"provider":"gotsport","external_id":"1"}`, wantErr: true},
		{name: "not json", value: `Solar SC`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := IncomingMessage{Topic: "team-ingest", Value: []byte(tt.value)}
			rec, err := msg.ParseIngestRecord()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, rec.Provider, rec.ExternalID, rec.RawName)
		})
	}
}
