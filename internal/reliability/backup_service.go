// Package reliability provides ledger backups to object storage.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/events"
	"github.com/rs/zerolog"
)

const (
	backupFilePrefix  = "papertrader-backup-"
	backupTimeLayout  = "2006-01-02-150405"
	minBackupsToKeep  = 3
	backupMetadataKey = "backup-metadata.json"
)

// BackupMetadata is stored alongside the snapshot inside each archive
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupInfo describes an archive already in the store
type BackupInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupResult is returned after a successful run
type BackupResult struct {
	Key       string
	Checksum  string
	SizeBytes int64
}

// BackupService snapshots the ledger database and uploads it to an object store
type BackupService struct {
	db         *database.DB
	store      ObjectStore
	events     *events.Manager
	now        func() time.Time
	stagingDir string
	prefix     string
	log        zerolog.Logger
}

// NewBackupService creates a backup service. stagingDir is created on demand.
func NewBackupService(
	db *database.DB,
	store ObjectStore,
	stagingDir string,
	prefix string,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		db:         db,
		store:      store,
		events:     eventManager,
		now:        time.Now,
		stagingDir: stagingDir,
		prefix:     strings.Trim(prefix, "/"),
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// Run snapshots the database, archives it and uploads the archive
func (s *BackupService) Run(ctx context.Context) (*BackupResult, error) {
	startTime := s.now().UTC()
	s.log.Info().Str("database", s.db.Name()).Msg("Starting backup")

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	workDir, err := os.MkdirTemp(s.stagingDir, "backup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	snapshotName := s.db.Name() + ".db"
	snapshotPath := filepath.Join(workDir, snapshotName)

	// VACUUM INTO gives a consistent copy without blocking writers for long
	if _, err := s.db.Conn().ExecContext(ctx, "VACUUM INTO ?", snapshotPath); err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", s.db.Name(), err)
	}

	checksum, size, err := fileChecksum(snapshotPath)
	if err != nil {
		return nil, err
	}

	meta := BackupMetadata{
		Timestamp: startTime,
		Database:  s.db.Name(),
		Checksum:  checksum,
		SizeBytes: size,
	}
	metaPath := filepath.Join(workDir, backupMetadataKey)
	if err := writeMetadata(metaPath, meta); err != nil {
		return nil, err
	}

	archiveName := backupFilePrefix + startTime.Format(backupTimeLayout) + ".tar.gz"
	archivePath := filepath.Join(workDir, archiveName)
	if err := createArchive(archivePath, map[string]string{
		snapshotName:      snapshotPath,
		backupMetadataKey: metaPath,
	}); err != nil {
		return nil, err
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	key := s.objectKey(archiveName)
	if err := s.store.Upload(ctx, key, archive, info.Size()); err != nil {
		s.events.EmitError("reliability", err, map[string]interface{}{"key": key})
		return nil, err
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Dur("duration", s.now().Sub(startTime)).
		Msg("Backup uploaded")

	s.events.Emit("reliability", &events.BackupCompletedData{Key: key, SizeBytes: info.Size()})

	return &BackupResult{Key: key, Checksum: checksum, SizeBytes: info.Size()}, nil
}

// ListBackups returns archives under the prefix, newest first. Objects
// whose names do not parse as backups are ignored.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.objectKey(backupFilePrefix))
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasPrefix(name, backupFilePrefix) || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupFilePrefix), ".tar.gz")
		ts, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unparseable backup timestamp")
			continue
		}
		backups = append(backups, BackupInfo{Timestamp: ts, Key: obj.Key, SizeBytes: obj.Size})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than retention, always keeping
// the newest three. Returns the number deleted.
func (s *BackupService) RotateOldBackups(ctx context.Context, retention time.Duration) (int, error) {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().UTC().Add(-retention)
	deleted := 0
	for _, b := range backups[minBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Warn().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("Rotated old backups")
	}
	return deleted, nil
}

func (s *BackupService) objectKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func fileChecksum(filePath string) (string, int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func writeMetadata(filePath string, meta BackupMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup metadata: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}
	return nil
}

// createArchive writes a tar.gz containing files keyed by archive name
func createArchive(archivePath string, files map[string]string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := addFileToArchive(tw, name, files[name]); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip: %w", err)
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, name, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filePath, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", name, err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}
