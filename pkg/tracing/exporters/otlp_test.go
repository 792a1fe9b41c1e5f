package exporters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOTLPEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		endpoint string
		protocol string
		insecure bool
	}{
		{"collector:4317", "collector:4317", "grpc", true},
		{"grpc://collector:4317", "collector:4317", "grpc", true},
		{"http://collector:4318/", "collector:4318", "http", true},
		{"https://otel.example.com", "otel.example.com", "http", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := ParseOTLPEndpoint(tt.in)
			assert.Equal(t, tt.endpoint, cfg.Endpoint)
			assert.Equal(t, tt.protocol, cfg.Protocol)
			assert.Equal(t, tt.insecure, cfg.Insecure)
		})
	}
}
