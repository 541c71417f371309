package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aristath/papertrader/internal/clients/yahoo"
	"github.com/aristath/papertrader/internal/events"
	"github.com/aristath/papertrader/internal/modules/historical"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/aristath/papertrader/internal/modules/valuation"
	"github.com/aristath/papertrader/internal/reliability"
	"github.com/aristath/papertrader/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices creates the oracle client and every service
func InitializeServices(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	cfg := container.Config
	conn := container.PortfolioDB.Conn()

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	yahooOpts := []yahoo.ClientOption{
		yahoo.WithTimeout(cfg.OracleTimeout),
		yahoo.WithRateLimit(cfg.OracleRateLimit),
		yahoo.WithCache(container.ClientDataRepo, cfg.QuoteCacheTTL),
	}
	if cfg.OracleBaseURL != "" {
		yahooOpts = append(yahooOpts, yahoo.WithBaseURL(cfg.OracleBaseURL))
	}
	container.YahooClient = yahoo.NewClient(log, yahooOpts...)

	container.PriceService = services.NewPriceService(container.YahooClient, container.PriceRepo, cfg.OracleTimeout, log)

	container.PortfolioService = portfolio.NewPortfolioService(container.AccountRepo, container.PositionRepo, log)
	container.HistoricalService = historical.NewService(conn, container.PriceRepo, log)

	container.TradingService = trading.NewTradingService(
		conn,
		container.AccountRepo,
		container.PositionRepo,
		container.TransactionRepo,
		container.PriceService,
		container.EventManager,
		trading.Config{Currency: cfg.Currency, MaxRetries: cfg.TradeMaxRetries},
		log,
	)

	container.ValuationService = valuation.NewService(
		conn,
		container.AccountRepo,
		container.PositionRepo,
		container.TransactionRepo,
		container.PriceRepo,
		container.PriceService,
		cfg.ValuationWindowDays,
		log,
	)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Region:          cfg.Backup.Region,
			Endpoint:        cfg.Backup.Endpoint,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.PortfolioDB,
			store,
			filepath.Join(cfg.DataDir, "backups"),
			cfg.Backup.Prefix,
			container.EventManager,
			log,
		)
	}

	log.Debug().Bool("backups", container.BackupService != nil).Msg("Services initialized")
	return nil
}
