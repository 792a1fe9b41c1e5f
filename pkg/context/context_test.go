package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetReviewer(ctx))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetReviewer(ctx, "ops@club")
	ctx = SetRunID(ctx, "run-9")
	ctx = SetRoute(ctx, "/review")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "ops@club", GetReviewer(ctx))
	assert.Equal(t, "run-9", GetRunID(ctx))
	assert.Equal(t, "/review", GetRoute(ctx))
	assert.Empty(t, GetMethod(ctx))
}
