package di

import (
	"errors"
	"fmt"

	"github.com/aristath/papertrader/internal/config"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Initialize services
// 4. Register jobs
//
// The scheduler is created but not started.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.closeDatabases()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, log); err != nil {
		container.closeDatabases()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, log); err != nil {
		container.closeDatabases()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}

// Close waits for background syncs and closes the databases. Stop the
// scheduler first.
func (c *Container) Close() error {
	c.background.Wait()
	return c.closeDatabases()
}

func (c *Container) closeDatabases() error {
	var errs []error
	if c.PortfolioDB != nil {
		if err := c.PortfolioDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.CacheDB != nil {
		if err := c.CacheDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
