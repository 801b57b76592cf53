package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// PerformanceMetrics summarizes realized outcomes across closed trades.
type PerformanceMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalRealized float64
	AverageWin    float64
	AverageLoss   float64
	ProfitFactor  float64
	Expectancy    float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldDuration  time.Duration

	// Counts of trades by close reason. Overridden closes are grouped
	// under "user_override" regardless of the free-form note.
	CloseReasons   map[string]int
	MonthlyPnL     map[string]float64
	NeverTriggered int // closed directly from the waiting state
}

// AnalyzeClosedTrades computes performance metrics over the given trades.
// Trades that are not closed are ignored.
func AnalyzeClosedTrades(trades []*domain.Trade) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		CloseReasons: make(map[string]int),
		MonthlyPnL:   make(map[string]float64),
	}

	closed := make([]*domain.Trade, 0, len(trades))
	for _, trade := range trades {
		if trade.Status == domain.StatusClosed && !trade.CloseTime.IsZero() {
			closed = append(closed, trade)
		}
	}
	if len(closed) == 0 {
		return metrics
	}

	// Sort by close time so streaks are computed in lifecycle order.
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].CloseTime.Before(closed[j].CloseTime)
	})

	var consecutiveWins, consecutiveLosses int
	var totalWins, totalLosses float64
	var totalHold time.Duration
	var heldTrades int

	for _, trade := range closed {
		metrics.TotalTrades++
		metrics.TotalRealized += trade.RealizedPnL

		if trade.RealizedPnL > 0 {
			metrics.WinningTrades++
			totalWins += trade.RealizedPnL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			metrics.LosingTrades++
			totalLosses += trade.RealizedPnL
			consecutiveLosses++
			consecutiveWins = 0
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		metrics.CloseReasons[normalizeCloseReason(trade.CloseReason)]++
		metrics.MonthlyPnL[trade.CloseTime.Format("2006-01")] += trade.RealizedPnL

		if !trade.TriggerTime.IsZero() {
			totalHold += trade.CloseTime.Sub(trade.TriggerTime)
			heldTrades++
		} else {
			metrics.NeverTriggered++
		}
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = totalWins / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = totalLosses / float64(metrics.LosingTrades)
	}
	if totalLosses != 0 {
		metrics.ProfitFactor = totalWins / -totalLosses
	}
	metrics.Expectancy = (metrics.WinRate * metrics.AverageWin) + ((1 - metrics.WinRate) * metrics.AverageLoss)
	if heldTrades > 0 {
		metrics.AverageHoldDuration = totalHold / time.Duration(heldTrades)
	}

	return metrics
}

func normalizeCloseReason(reason string) string {
	if strings.HasPrefix(reason, domain.CloseReasonUserOverridePrefix) {
		return "user_override"
	}
	if reason == "" {
		return "unknown"
	}
	return reason
}

// MonthlyPnLSorted returns the monthly realized P&L as a time-ordered slice.
func (m *PerformanceMetrics) MonthlyPnLSorted() []MonthlyPnL {
	months := make([]MonthlyPnL, 0, len(m.MonthlyPnL))
	for month, pnl := range m.MonthlyPnL {
		date, err := time.Parse("2006-01", month)
		if err != nil {
			continue
		}
		months = append(months, MonthlyPnL{Month: date, PnL: pnl})
	}
	sort.Slice(months, func(i, j int) bool {
		return months[i].Month.Before(months[j].Month)
	})
	return months
}

// MonthlyPnL is the realized P&L for a single calendar month.
type MonthlyPnL struct {
	Month time.Time
	PnL   float64
}
