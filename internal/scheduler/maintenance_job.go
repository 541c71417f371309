package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	criticalFreeBytes = 500 * 1000 * 1000
	lowFreeBytes      = 5 * 1000 * 1000 * 1000
)

// DatabaseMaintenanceJob checks integrity of every database and truncates
// their WAL files, then checks free space on the data directory. A failed integrity check on the ledger is fatal to the
// run; the cache is rebuilt from the oracle, so its failures are only logged.
type DatabaseMaintenanceJob struct {
	ledger  *database.DB
	cache   *database.DB
	dataDir string
	log     zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a new maintenance job. cache may be nil;
// an empty dataDir skips the disk check.
func NewDatabaseMaintenanceJob(ledger, cache *database.DB, dataDir string, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		ledger:  ledger,
		cache:   cache,
		dataDir: dataDir,
		log:     log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the integrity checks and checkpoints
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if j.ledger != nil {
		if err := j.ledger.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", j.ledger.Name()).Msg("Ledger integrity check failed")
			return fmt.Errorf("database %s is corrupted: %w", j.ledger.Name(), err)
		}
		j.checkpoint(j.ledger)
	}

	if j.cache != nil {
		if err := j.cache.HealthCheck(ctx); err != nil {
			j.log.Warn().Err(err).Str("database", j.cache.Name()).Msg("Cache integrity check failed")
		} else {
			j.checkpoint(j.cache)
		}
	}

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	j.log.Info().Msg("Database maintenance completed")
	return nil
}

func (j *DatabaseMaintenanceJob) checkDiskSpace(ctx context.Context) error {
	if j.dataDir == "" {
		return nil
	}

	usage, err := disk.UsageWithContext(ctx, j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Str("dir", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	availableGB := float64(usage.Free) / 1e9
	switch {
	case usage.Free < criticalFreeBytes:
		j.log.Error().Float64("available_gb", availableGB).Msg("Insufficient disk space for ledger writes")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	case usage.Free < lowFreeBytes:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Low disk space")
	default:
		j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")
	}
	return nil
}

func (j *DatabaseMaintenanceJob) checkpoint(db *database.DB) {
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		return
	}
	j.log.Debug().Str("database", db.Name()).Msg("WAL checkpointed")
}
