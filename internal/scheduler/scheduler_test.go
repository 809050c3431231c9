package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleReplacesJob(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	require.NoError(t, s.Schedule("sweep", "@every 6h", func() {}))
	require.NoError(t, s.Schedule("sweep", "0 3 * * *", func() {}))
	require.NoError(t, s.Schedule("ingest", "@hourly", func() {}))

	assert.Equal(t, 2, s.Jobs())
	assert.Len(t, s.cron.Entries(), 2)
}

func TestScheduleInvalidSpec(t *testing.T) {
	s := New(nil)
	for _, spec := range []string{"", "invalid", "61 * * * *", "@every banana"} {
		assert.Error(t, s.Schedule("job", spec, func() {}), spec)
	}
	assert.Zero(t, s.Jobs())
}

func TestJobsRun(t *testing.T) {
	s := New(nil)

	var runs atomic.Int32
	require.NoError(t, s.Schedule("tick", "@every 1s", func() { runs.Add(1) }))
	s.Start()
	s.Start() // idempotent

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestPanickingJobIsRecovered(t *testing.T) {
	s := New(nil)

	var after atomic.Bool
	require.NoError(t, s.Schedule("bad", "@every 1s", func() { panic("boom") }))
	require.NoError(t, s.Schedule("good", "@every 1s", func() { after.Store(true) }))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, after.Load, 3*time.Second, 50*time.Millisecond)
}
