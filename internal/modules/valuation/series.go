package valuation

import (
	"sort"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Mode selects which holdings are multiplied by each day's closes
type Mode string

const (
	// ModeCurrent values today's positions at every past close
	ModeCurrent Mode = "current"
	// ModeHistorical values the holdings in effect at the end of each date,
	// replayed from the transaction ledger
	ModeHistorical Mode = "historical"
)

// ParseMode parses a mode name; empty means ModeCurrent
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCurrent:
		return ModeCurrent, nil
	case ModeHistorical:
		return ModeHistorical, nil
	default:
		return "", domain.NewError(domain.KindValidation, "unknown valuation mode %q (want current or historical)", s)
	}
}

// seriesFromPositions sums quantity * close per date using the given
// positions for every date. Samples of symbols not held are ignored and
// dates without a contributing sample are omitted.
func seriesFromPositions(positions []domain.Position, samples []domain.PriceSample) []domain.ValuePoint {
	held := make(map[string]int64, len(positions))
	for _, p := range positions {
		held[p.Symbol] = p.Quantity
	}

	totals := make(map[string]decimal.Decimal)
	for _, s := range samples {
		qty, ok := held[s.Symbol]
		if !ok || qty <= 0 {
			continue
		}
		totals[s.Date] = totals[s.Date].Add(s.ClosingPrice.Mul(decimal.NewFromInt(qty)))
	}

	return sortedPoints(totals)
}

// seriesFromLedger replays transactions (ordered by date) so each sample
// is weighted by the quantity held at the end of its date.
func seriesFromLedger(transactions []domain.Transaction, samples []domain.PriceSample) []domain.ValuePoint {
	byDate := make(map[string][]domain.PriceSample)
	dates := make([]string, 0)
	for _, s := range samples {
		if _, ok := byDate[s.Date]; !ok {
			dates = append(dates, s.Date)
		}
		byDate[s.Date] = append(byDate[s.Date], s)
	}
	sort.Strings(dates)

	held := make(map[string]int64)
	totals := make(map[string]decimal.Decimal)
	next := 0
	for _, date := range dates {
		for next < len(transactions) && transactions[next].Date <= date {
			t := transactions[next]
			if t.Kind == domain.TradeKindBuy {
				held[t.Symbol] += t.Quantity
			} else {
				held[t.Symbol] -= t.Quantity
			}
			next++
		}

		for _, s := range byDate[date] {
			qty := held[s.Symbol]
			if qty <= 0 {
				continue
			}
			totals[date] = totals[date].Add(s.ClosingPrice.Mul(decimal.NewFromInt(qty)))
		}
	}

	return sortedPoints(totals)
}

func sortedPoints(totals map[string]decimal.Decimal) []domain.ValuePoint {
	points := make([]domain.ValuePoint, 0, len(totals))
	for date, total := range totals {
		points = append(points, domain.ValuePoint{Date: date, TotalValue: total})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}
