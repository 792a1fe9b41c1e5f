package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/thistle/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Header keys carried on every produced message
const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
	HeaderTraceParent   = "traceparent"
	HeaderTraceState    = "tracestate"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	raw kafka.Message
}

func newIncomingMessage(msg kafka.Message) IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers[HeaderTraceParent],
		TraceState:  headers[HeaderTraceState],
		raw:         msg,
	}
}

// ParseIngestRecord decodes and validates the message value. Provider and
// external id are trimmed; the raw name is kept as sent.
func (m IncomingMessage) ParseIngestRecord() (models.IngestRecord, error) {
	var rec models.IngestRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode ingest record at %s/%d/%d: %w", m.Topic, m.Partition, m.Offset, err)
	}

	rec.Provider = strings.TrimSpace(rec.Provider)
	rec.ExternalID = strings.TrimSpace(rec.ExternalID)

	if err := validate.Struct(rec); err != nil {
		return rec, fmt.Errorf("invalid ingest record at %s/%d/%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	return rec, nil
}
