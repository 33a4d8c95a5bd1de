package analytics

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/marketview/seriesd/internal/series"
)

// DefaultFeePercent is used when configuration does not supply a
// transaction fee. Expressed in percent: 0.05 means 0.05%.
const DefaultFeePercent = 0.05

const (
	cumReturnFloor = -0.99
	cumReturnCeil  = 1.00
)

// Engine computes derived return columns for a raw series.
type Engine struct {
	feePercent float64
	logger     *logrus.Entry
}

// NewEngine creates a metrics engine with the given transaction fee
// percentage. Negative values fall back to DefaultFeePercent; zero
// disables fees.
func NewEngine(feePercent float64) *Engine {
	if feePercent < 0 {
		feePercent = DefaultFeePercent
	}
	return &Engine{
		feePercent: feePercent,
		logger:     logrus.WithField("component", "metrics-engine"),
	}
}

// FeePercent returns the configured transaction fee percentage.
func (e *Engine) FeePercent() float64 { return e.feePercent }

// ComputeDerived fills in the derived columns of a raw series and
// returns a new series. It is idempotent: input that already carries
// derived columns is returned untouched.
func (e *Engine) ComputeDerived(s series.Series) series.Series {
	if s.HasDerived || s.Empty() {
		return s
	}

	out := make([]series.Sample, len(s.Samples))
	copy(out, s.Samples)

	feeRate := e.feePercent / 100

	cum := 1.0
	cumFees := 1.0
	for i := range out {
		if i > 0 {
			prev := out[i-1]
			if prev.Price != 0 {
				out[i].Return = (out[i].Price - prev.Price) / prev.Price
			}
			out[i].PositionLag = prev.Position

			if delta := out[i].Position - prev.Position; delta != 0 {
				out[i].TransactionCost = feeRate * math.Abs(delta)
			}
		}

		out[i].StrategyReturn = sanitize(out[i].Return * out[i].PositionLag)
		out[i].StrategyReturnAfterFees = sanitize(out[i].StrategyReturn - out[i].TransactionCost)

		cum *= 1 + out[i].StrategyReturn
		cumFees *= 1 + out[i].StrategyReturnAfterFees
		out[i].CumulativeReturn = clamp(sanitize(cum - 1))
		out[i].CumulativeReturnAfterFees = clamp(sanitize(cumFees - 1))
	}

	return series.Series{Samples: out, HasDerived: true}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v float64) float64 {
	if v < cumReturnFloor {
		return cumReturnFloor
	}
	if v > cumReturnCeil {
		return cumReturnCeil
	}
	return v
}
