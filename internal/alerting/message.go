package alerting

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"price-tracker/internal/baseline"
	"price-tracker/internal/history"
)

// Event is a threshold crossing, built by the sampling loop and consumed immediately.
type Event struct {
	Symbol        string
	Direction     baseline.Direction
	PercentChange float64
	Current       float64
	Previous      float64
	ThresholdPct  float64
	Observation   history.Observation
}

// RenderEvent formats an alert for humans. Magnitudes are rounded to two decimals.
func RenderEvent(e Event) string {
	verb := "changed"
	switch e.Direction {
	case baseline.Increase:
		verb = "increased"
	case baseline.Decrease:
		verb = "decreased"
	}

	return fmt.Sprintf("%s price %s by %s%% (threshold %s%%): current $%s, previous $%s at %s",
		e.Symbol,
		verb,
		fixed2(math.Abs(e.PercentChange)),
		fixed2(e.ThresholdPct),
		fixed2(e.Current),
		fixed2(e.Previous),
		e.Observation.Time.Time().UTC().Format(time.RFC3339),
	)
}

// RenderHeartbeat formats the routine per-tick price message.
func RenderHeartbeat(symbol string, price float64, at time.Time) string {
	return fmt.Sprintf("%s price at time: %s is $%s", symbol, at.UTC().Format(time.RFC3339), fixed2(price))
}

// StartupMessage announces that tracking has (re)started.
func StartupMessage(symbol string, price float64) string {
	return fmt.Sprintf("Server restarted, starting to track %s price (current $%s)...", symbol, fixed2(price))
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
