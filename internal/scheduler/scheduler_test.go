package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	err   error
	calls int32
}

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.calls, 1)
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "sync"}
	s.Register(job)

	require.NoError(t, s.RunNow("sync"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))

	assert.Error(t, s.RunNow("missing"))
}

func TestScheduler_RecordsLastError(t *testing.T) {
	s := New(zerolog.Nop())
	s.Register(&countingJob{name: "broken", err: errors.New("boom")})

	assert.Error(t, s.RunNow("broken"))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "boom", jobs[0].LastErr)
	assert.NotNil(t, jobs[0].LastRun)
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "bad"}))

	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1h", job))
	assert.Error(t, s.AddJob("@every 1h", job))

	s.Start()
	defer s.Stop()

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1h", jobs[0].Schedule)
	require.NotNil(t, jobs[0].NextRun)
	assert.True(t, jobs[0].NextRun.After(time.Now()))
}

func TestScheduler_JobsSorted(t *testing.T) {
	s := New(zerolog.Nop())
	s.Register(&countingJob{name: "b"})
	s.Register(&countingJob{name: "a"})

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "b", jobs[1].Name)
}
