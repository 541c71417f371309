// Package scheduler runs background jobs on cron schedules and on demand.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus describes a registered job
type JobStatus struct {
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	Name     string     `json:"name"`
	Schedule string     `json:"schedule,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

type registration struct {
	job      Job
	schedule string
	entryID  cron.EntryID
	lastRun  time.Time
	lastErr  error
	running  sync.Mutex
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]*registration
	mu   sync.RWMutex
	log  zerolog.Logger
}

// New creates a new scheduler. Schedules use the six-field cron format
// with seconds.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		jobs: make(map[string]*registration),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// Register makes a job available to RunNow without scheduling it
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name()]; !ok {
		s.jobs[job.Name()] = &registration{job: job}
	}
}

// AddJob registers a job with a cron schedule.
// Schedule examples:
//   - "0 */5 * * * *"        - Every 5 minutes
//   - "@hourly"              - Every hour
//   - "0 30 22 * * MON-FRI"  - 22:30 on weekdays
//   - "@every 30s"           - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.Name()]; ok && existing.schedule != "" {
		return fmt.Errorf("job %s is already scheduled", job.Name())
	}

	reg := &registration{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(reg)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	reg.entryID = id
	s.jobs[job.Name()] = reg

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately, outside its schedule.
// A job never runs twice concurrently.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	reg, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.execute(reg)
}

func (s *Scheduler) execute(reg *registration) error {
	reg.running.Lock()
	defer reg.running.Unlock()

	name := reg.job.Name()
	s.log.Debug().Str("job", name).Msg("Running job")

	start := time.Now()
	err := reg.job.Run()

	s.mu.Lock()
	reg.lastRun = start
	reg.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Job failed")
		return err
	}
	s.log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("Job completed")
	return nil
}

// Jobs returns the status of every registered job, sorted by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, reg := range s.jobs {
		st := JobStatus{Name: name, Schedule: reg.schedule}
		if !reg.lastRun.IsZero() {
			t := reg.lastRun
			st.LastRun = &t
		}
		if reg.lastErr != nil {
			st.LastErr = reg.lastErr.Error()
		}
		if reg.schedule != "" {
			if next := s.cron.Entry(reg.entryID).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
