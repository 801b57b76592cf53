package engine

import (
	"time"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// TriggerResult describes a fired entry condition for a WAITING trade.
type TriggerResult struct {
	TriggerTime  time.Time
	TriggerPrice float64
}

// EvaluateTrigger decides whether a WAITING trade's entry condition has fired
// given a new price sample, returning nil when it has not. Pure function; the
// caller applies the transition.
//
// The trigger direction depends on the entry strategy: breakout entries fire
// only when price crosses through the level in the trade's direction (high >=
// entry for BUY, low <= entry for SELL); every other strategy fires when price
// reaches the level (low <= entry for BUY, high >= entry for SELL), whichever
// side it arrives from.
func EvaluateTrigger(trade *domain.Trade, sample domain.PriceSample) *TriggerResult {
	if trade == nil || trade.Status != domain.StatusWaiting {
		return nil
	}

	var fired bool
	breakout := trade.EntryStrategy == domain.EntryBreakout
	switch trade.Action {
	case domain.ActionBuy:
		if breakout {
			fired = sample.High >= trade.EntryPrice
		} else {
			fired = sample.Low <= trade.EntryPrice
		}
	case domain.ActionSell:
		if breakout {
			fired = sample.Low <= trade.EntryPrice
		} else {
			fired = sample.High >= trade.EntryPrice
		}
	}
	if !fired {
		return nil
	}

	// The fill is recorded at the intended level, not the overshoot price.
	// This is a deliberate simplification, not slippage-accurate.
	return &TriggerResult{
		TriggerTime:  sample.Timestamp,
		TriggerPrice: trade.EntryPrice,
	}
}
