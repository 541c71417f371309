/**
 * Package di wires the application's dependencies.
 *
 * The Container is the single source of truth for service instances. It is
 * built by Wire() and handed to the HTTP server, the scheduler and the CLI.
 */
package di

import (
	"sync"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/clients/yahoo"
	"github.com/aristath/papertrader/internal/config"
	"github.com/aristath/papertrader/internal/database"
	"github.com/aristath/papertrader/internal/events"
	"github.com/aristath/papertrader/internal/modules/historical"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/aristath/papertrader/internal/modules/valuation"
	"github.com/aristath/papertrader/internal/reliability"
	"github.com/aristath/papertrader/internal/scheduler"
	"github.com/aristath/papertrader/internal/services"
)

/**
 * Container holds all dependencies for the application.
 *
 * - Databases: portfolio.db (ledger profile) and cache.db (cache profile)
 * - Clients: the Yahoo price oracle with its persistent quote cache
 * - Repositories: account, positions, transactions, price history
 * - Services: trading engine, valuation, ingestion, price fallback chain
 * - Jobs: price sync, database maintenance, cache cleanup, optional backup
 */
type Container struct {
	Config *config.Config

	// Databases
	PortfolioDB *database.DB
	CacheDB     *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Clients
	ClientDataRepo *clientdata.Repository
	YahooClient    *yahoo.Client

	// Repositories
	AccountRepo     *portfolio.AccountRepository
	PositionRepo    *portfolio.PositionRepository
	TransactionRepo *trading.TransactionRepository
	PriceRepo       *historical.PriceRepository

	// Services
	PriceService      *services.PriceService
	PortfolioService  *portfolio.PortfolioService
	TradingService    *trading.TradingService
	HistoricalService *historical.Service
	ValuationService  *valuation.Service
	BackupService     *reliability.BackupService // nil unless a backup bucket is configured

	// Jobs
	Scheduler      *scheduler.Scheduler
	PriceSyncJob   *scheduler.PriceSyncJob
	MaintenanceJob *scheduler.DatabaseMaintenanceJob
	CleanupJob     *clientdata.CleanupJob
	BackupJob      *scheduler.BackupJob // nil unless BackupService is set

	// Background work started by services (new-position price syncs)
	background sync.WaitGroup
}
