package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA returns the simple moving average of values over period, aligned with
// the input. Entries before the first full window are nil.
func SMA(values []float64, period int) []*float64 {
	out := make([]*float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	if period == 1 {
		for i := range values {
			v := values[i]
			out[i] = &v
		}
		return out
	}

	sma := talib.Sma(values, period)
	for i := period - 1; i < len(sma) && i < len(values); i++ {
		if math.IsNaN(sma[i]) {
			continue
		}
		v := sma[i]
		out[i] = &v
	}
	return out
}
