package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// JobRunner is the part of the scheduler the system endpoints use
type JobRunner interface {
	RunNow(name string) error
	Jobs() []scheduler.JobStatus
}

// jobAliases maps URL names to registered job names
var jobAliases = map[string]string{
	"sync-prices":   scheduler.PriceSyncJobName,
	"backup":        scheduler.BackupJobName,
	"maintenance":   "database_maintenance",
	"cache-cleanup": "cache_cleanup",
}

// SystemHandlers serves health and operational endpoints
type SystemHandlers struct {
	databases   []*database.DB
	jobs        JobRunner
	startupTime time.Time
	log         zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance. The first
// database is the ledger; status is "degraded" when it fails its check.
func NewSystemHandlers(databases []*database.DB, jobs JobRunner, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases:   databases,
		jobs:        jobs,
		startupTime: time.Now(),
		log:         log.With().Str("component", "system_handlers").Logger(),
	}
}

// DatabaseStatus reports one database
type DatabaseStatus struct {
	Stats   *database.Stats `json:"stats,omitempty"`
	Name    string          `json:"name"`
	Error   string          `json:"error,omitempty"`
	Healthy bool            `json:"healthy"`
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string                `json:"status"`
	Databases     []DatabaseStatus      `json:"databases"`
	Jobs          []scheduler.JobStatus `json:"jobs"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
}

// HandleSystemStatus returns database health, host load and job status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Databases:     make([]DatabaseStatus, 0, len(h.databases)),
		Jobs:          []scheduler.JobStatus{},
	}

	for i, db := range h.databases {
		st := DatabaseStatus{Name: db.Name(), Healthy: true}
		if err := db.QuickCheck(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
			if i == 0 {
				response.Status = "degraded"
			}
		} else if stats, err := db.GetStats(); err == nil {
			st.Stats = stats
		} else {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
		}
		response.Databases = append(response.Databases, st)
	}

	response.CPUPercent, response.MemoryPercent = h.getSystemStats(ctx)

	if h.jobs != nil {
		response.Jobs = h.jobs.Jobs()
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleJobsStatus lists registered jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.jobs != nil {
		jobs = h.jobs.Jobs()
	}
	writeJSON(w, http.StatusOK, jobs, h.log)
}

// HandleRunJob runs a job synchronously: POST /api/system/jobs/{job}
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "job")
	name, ok := jobAliases[alias]
	if !ok || h.jobs == nil || !h.hasJob(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job: " + alias}, h.log)
		return
	}

	start := time.Now()
	if err := h.jobs.RunNow(name); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error(), "job": name}, h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	}, h.log)
}

func (h *SystemHandlers) hasJob(name string) bool {
	for _, j := range h.jobs.Jobs() {
		if j.Name == name {
			return true
		}
	}
	return false
}

// getSystemStats samples CPU over 100ms to keep the endpoint fast
func (h *SystemHandlers) getSystemStats(ctx context.Context) (float64, float64) {
	var cpuPercent float64
	if values, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(values) > 0 {
		cpuPercent = values[0]
	}

	var memPercent float64
	if memStat, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		memPercent = memStat.UsedPercent
	}

	return cpuPercent, memPercent
}
