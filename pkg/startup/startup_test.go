package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func TestStartup_DependencyOrder(t *testing.T) {
	s := testStartup(1)
	var started, stopped []string
	record := func(name string) Func {
		return Func{
			Name:    name,
			OnStart: func(context.Context) error { started = append(started, name); return nil },
			OnStop:  func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	api := record("api")
	api.Requires = []string{"redis"}
	s.AddDependency(api)
	s.AddDependency(record("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"redis", "api"}, started)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"api", "redis"}, stopped)
	assert.Equal(t, StartupStatusStopped, s.Status("api"))
}

func TestStartup_RetriesThenSucceeds(t *testing.T) {
	s := testStartup(3)
	calls := 0
	s.AddDependency(Func{Name: "flaky", OnStart: func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := testStartup(2)
	s.AddDependency(Func{Name: "broken", OnStart: func(context.Context) error { return errors.New("boom") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("broken"))
}
