package clientdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())
	ctx := context.Background()

	for _, table := range AllTables {
		require.NoError(t, repo.Store(ctx, table, "EXPIRED", cachedQuote{}, -time.Hour))
		require.NoError(t, repo.Store(ctx, table, "FRESH", cachedQuote{}, time.Hour))
	}

	require.NoError(t, job.Run())

	var remaining int
	require.NoError(t, db.QueryRow(
		"SELECT (SELECT COUNT(*) FROM current_prices) + (SELECT COUNT(*) FROM recent_closes)",
	).Scan(&remaining))
	assert.Equal(t, len(AllTables), remaining)
}

func TestCleanupJobRunEmptyTables(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())
	require.NoError(t, job.Run())
}
