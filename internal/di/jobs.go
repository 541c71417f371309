package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	maintenanceSchedule  = "0 0 3 * * *"  // Daily at 03:00
	cacheCleanupSchedule = "0 15 * * * *" // Hourly
	newSymbolSyncTimeout = 2 * time.Minute
)

// RegisterJobs creates background jobs and schedules them
func RegisterJobs(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	cfg := container.Config
	sched := scheduler.New(log)
	container.Scheduler = sched

	container.PriceSyncJob = scheduler.NewPriceSyncJob(
		container.PortfolioService,
		container.YahooClient,
		container.HistoricalService,
		container.EventManager,
		cfg.PriceSyncPeriod,
		10*time.Minute,
		log,
	)
	if cfg.PriceSyncSchedule != "" {
		if err := sched.AddJob(cfg.PriceSyncSchedule, container.PriceSyncJob); err != nil {
			return err
		}
	} else {
		sched.Register(container.PriceSyncJob)
	}

	container.MaintenanceJob = scheduler.NewDatabaseMaintenanceJob(container.PortfolioDB, container.CacheDB, cfg.DataDir, log)
	if err := sched.AddJob(maintenanceSchedule, container.MaintenanceJob); err != nil {
		return err
	}

	container.CleanupJob = clientdata.NewCleanupJob(container.ClientDataRepo, log)
	if err := sched.AddJob(cacheCleanupSchedule, container.CleanupJob); err != nil {
		return err
	}

	if container.BackupService != nil {
		container.BackupJob = scheduler.NewBackupJob(container.BackupService, cfg.Backup.Retention, log)
		if cfg.Backup.Schedule != "" {
			if err := sched.AddJob(cfg.Backup.Schedule, container.BackupJob); err != nil {
				return err
			}
		} else {
			sched.Register(container.BackupJob)
		}
	}

	// Buying a symbol with no stored closes pulls its history in the background
	// so valuation has data without waiting for the next scheduled sync.
	container.TradingService.SetNewPositionHook(func(symbol string) {
		container.background.Add(1)
		go func() {
			defer container.background.Done()
			container.syncNewSymbol(symbol, log)
		}()
	})

	log.Info().Int("jobs", len(sched.Jobs())).Msg("Jobs registered")
	return nil
}

func (c *Container) syncNewSymbol(symbol string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), newSymbolSyncTimeout)
	defer cancel()

	has, err := c.HistoricalService.HasHistory(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to check price history")
		return
	}
	if has {
		return
	}

	if _, err := c.PriceSyncJob.SyncSymbols(ctx, []string{symbol}); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Initial price history sync failed")
	}
}
