package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/baro-monitor/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Daemon.TickInterval = time.Millisecond
	cfg.Daemon.TicksPerSample = 1
	cfg.Daemon.ReportEvery = 10000 // keep notifications out of these tests
	return *cfg
}

func TestSupervisor_SpawnsOnlyEnabledWorkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sensors[1].Disabled = true // sensor 2 off

	s := New(cfg, nil, nil, zerolog.Nop())
	assert.Equal(t, []int{1, 3}, s.WorkerIDs())
}

func TestSupervisor_CommandUnknownWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sensors[1].Disabled = true

	s := New(cfg, nil, nil, zerolog.Nop())

	assert.Error(t, s.SendCommand(2, "dump"), "disabled sensor has no worker")
	assert.Error(t, s.SendCommand(9, "dump"))
	assert.Nil(t, s.DrainData(2))
}

func TestSupervisor_DumpRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	s := New(cfg, nil, nil, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	// Let each worker accrue a few samples.
	time.Sleep(25 * time.Millisecond)

	require.NoError(t, s.SendCommand(1, "dump"))
	time.Sleep(25 * time.Millisecond)

	lines := s.DrainData(1)
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "sensor 1:"), "header first: %q", lines[0])
	assert.Greater(t, len(lines), 1, "history entries follow the header")

	// Nothing new without another command.
	assert.Empty(t, s.DrainData(1))
}

func TestSupervisor_DumpAll(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sensors[2].Disabled = true // sensor 3 off

	s := New(cfg, nil, nil, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(25 * time.Millisecond)

	dumps := s.DumpAll(25 * time.Millisecond)

	require.Len(t, dumps, 2)
	for _, id := range []int{1, 2} {
		require.NotEmpty(t, dumps[id], "sensor %d", id)
		assert.Contains(t, dumps[id][0], "sensor")
	}
	assert.NotContains(t, dumps, 3)
}

func TestSupervisor_StopTerminatesWorkers(t *testing.T) {
	cfg := testConfig(t)

	s := New(cfg, nil, nil, zerolog.Nop())
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
