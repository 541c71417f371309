package scheduler

import (
	"context"
	"time"

	"github.com/aristath/papertrader/internal/reliability"
	"github.com/rs/zerolog"
)

// BackupJobName is the name used for manual triggers
const BackupJobName = "ledger_backup"

// Backupper uploads a ledger snapshot and prunes old ones
type Backupper interface {
	Run(ctx context.Context) (*reliability.BackupResult, error)
	RotateOldBackups(ctx context.Context, retention time.Duration) (int, error)
}

// BackupJob uploads a ledger snapshot, then rotates archives older than retention
type BackupJob struct {
	backups   Backupper
	retention time.Duration
	log       zerolog.Logger
}

// NewBackupJob creates a backup job. A zero retention disables rotation.
func NewBackupJob(backups Backupper, retention time.Duration, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:   backups,
		retention: retention,
		log:       log.With().Str("job", BackupJobName).Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return BackupJobName
}

// Run executes one backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := j.backups.Run(ctx); err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return err
	}

	if j.retention > 0 {
		if _, err := j.backups.RotateOldBackups(ctx, j.retention); err != nil {
			// The new archive is already uploaded
			j.log.Warn().Err(err).Msg("Backup rotation failed")
		}
	}
	return nil
}
