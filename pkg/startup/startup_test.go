package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_DependencyOrder(t *testing.T) {
	var started, stopped []string
	dep := func(name string, needs ...string) Func {
		return Func{
			Name:    name,
			Needs:   needs,
			StartFn: func(context.Context) error { started = append(started, name); return nil },
			StopFn:  func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	s := NewStartup(testLogger(), clockwork.NewFakeClock(), 1)
	s.AddDependency(dep("http", "database", "redis"))
	s.AddDependency(dep("database"))
	s.AddDependency(dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "redis", "http"}, started)
	assert.Equal(t, StatusStarted, s.Status("http"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"http", "redis", "database"}, stopped)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartup_RetriesWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	s := NewStartup(testLogger(), clock, 3)
	s.AddDependency(Func{Name: "database", StartFn: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 3, calls)
}

func TestStartup_Failures(t *testing.T) {
	tests := []struct {
		name string
		deps []Func
	}{
		{"unknown dependency", []Func{{Name: "http", Needs: []string{"database"}}}},
		{"cycle", []Func{{Name: "a", Needs: []string{"b"}}, {Name: "b", Needs: []string{"a"}}}},
		{"start error", []Func{{Name: "a", StartFn: func(context.Context) error { return errors.New("boom") }}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStartup(testLogger(), clockwork.NewFakeClock(), 1)
			for _, d := range tt.deps {
				s.AddDependency(d)
			}
			assert.Error(t, s.Start(context.Background()))
		})
	}
}
