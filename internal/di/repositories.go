package di

import (
	"fmt"

	"github.com/aristath/papertrader/internal/clientdata"
	"github.com/aristath/papertrader/internal/modules/historical"
	"github.com/aristath/papertrader/internal/modules/portfolio"
	"github.com/aristath/papertrader/internal/modules/trading"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	if container.PortfolioDB == nil || container.CacheDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	conn := container.PortfolioDB.Conn()

	container.AccountRepo = portfolio.NewAccountRepository(conn, container.Config.StartingBalance, log)
	container.PositionRepo = portfolio.NewPositionRepository(conn, log)
	container.TransactionRepo = trading.NewTransactionRepository(conn, log)
	container.PriceRepo = historical.NewPriceRepository(conn, log)

	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())

	log.Debug().Msg("Repositories initialized")
	return nil
}
