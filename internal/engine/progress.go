package engine

import (
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// ProgressResult reports the outcome of marking an ACTIVE trade against a new
// price. ExitReason is empty unless ExitTriggered is true.
type ProgressResult struct {
	UnrealizedPnL     float64
	MaxFavorablePrice float64
	MaxAdversePrice   float64
	ExitTriggered     bool
	ExitReason        string
}

// ComputeProgress evaluates an ACTIVE trade against a new current price:
// unrealized P&L, favorable/adverse extremes (extend-only), and the exit
// conditions in precedence order — target, then stop, then an external close
// request supplied by the caller. Pure function; the caller applies the result
// to the trade and persists it.
func ComputeProgress(trade *domain.Trade, currentPrice float64, externalCloseReason string) ProgressResult {
	res := ProgressResult{
		UnrealizedPnL:     trade.PnLAt(currentPrice),
		MaxFavorablePrice: trade.MaxFavorablePrice,
		MaxAdversePrice:   trade.MaxAdversePrice,
	}

	// Favorable for BUY is the running max, adverse the running min; mirrored
	// for SELL. Extremes only extend, never retract.
	switch trade.Action {
	case domain.ActionBuy:
		if currentPrice > res.MaxFavorablePrice {
			res.MaxFavorablePrice = currentPrice
		}
		if currentPrice < res.MaxAdversePrice {
			res.MaxAdversePrice = currentPrice
		}
	case domain.ActionSell:
		if currentPrice < res.MaxFavorablePrice {
			res.MaxFavorablePrice = currentPrice
		}
		if currentPrice > res.MaxAdversePrice {
			res.MaxAdversePrice = currentPrice
		}
	}

	// Target and stop are checked before any other condition since they are
	// unambiguous price crossings; first match wins.
	if reason, hit := exitReason(trade, currentPrice); hit {
		res.ExitTriggered = true
		res.ExitReason = reason
	} else if externalCloseReason != "" {
		res.ExitTriggered = true
		res.ExitReason = externalCloseReason
	}
	return res
}

// exitReason checks target and stop crossings for the trade's direction.
// A zero target or stop means the level is not set.
func exitReason(trade *domain.Trade, price float64) (string, bool) {
	switch trade.Action {
	case domain.ActionBuy:
		if trade.TargetPrice > 0 && price >= trade.TargetPrice {
			return domain.CloseReasonTargetHit, true
		}
		if trade.StopLoss > 0 && price <= trade.StopLoss {
			return domain.CloseReasonStopHit, true
		}
	case domain.ActionSell:
		if trade.TargetPrice > 0 && price <= trade.TargetPrice {
			return domain.CloseReasonTargetHit, true
		}
		if trade.StopLoss > 0 && price >= trade.StopLoss {
			return domain.CloseReasonStopHit, true
		}
	}
	return "", false
}
