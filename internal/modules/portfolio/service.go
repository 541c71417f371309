package portfolio

import (
	"context"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
)

// PortfolioService is the read side of the account and positions
type PortfolioService struct {
	accounts  *AccountRepository
	positions *PositionRepository
	log       zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(accounts *AccountRepository, positions *PositionRepository, log zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		accounts:  accounts,
		positions: positions,
		log:       log.With().Str("service", "portfolio").Logger(),
	}
}

// GetAccount returns the account, creating it on first access
func (s *PortfolioService) GetAccount(ctx context.Context) (*domain.Account, error) {
	account, err := s.accounts.GetOrCreate(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to load account")
	}
	return account, nil
}

// ListPositions returns every open position
func (s *PortfolioService) ListPositions(ctx context.Context) ([]domain.Position, error) {
	positions, err := s.positions.GetAll(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to load positions")
	}
	return positions, nil
}

// GetPosition returns the open position for symbol or a position_not_found error
func (s *PortfolioService) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, domain.NewError(domain.KindValidation, "symbol is required")
	}

	pos, err := s.positions.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to load position")
	}
	if pos == nil {
		return nil, domain.NewError(domain.KindPositionNotFound, "no position held for %s", symbol)
	}
	return pos, nil
}

// HeldSymbols returns the symbols of all open positions
func (s *PortfolioService) HeldSymbols(ctx context.Context) ([]string, error) {
	symbols, err := s.positions.Symbols(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistence, err, "failed to load held symbols")
	}
	return symbols, nil
}
