package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

func closedTrade(pnl float64, reason string, closedAt time.Time) *domain.Trade {
	trigger := closedAt.Add(-2 * time.Hour)
	return &domain.Trade{
		Ticker:      "TESTCOIN",
		Action:      domain.ActionBuy,
		EntryPrice:  100.0,
		Status:      domain.StatusClosed,
		TriggerTime: trigger,
		CloseTime:   closedAt,
		CloseReason: reason,
		RealizedPnL: pnl,
	}
}

func TestAnalyzeClosedTrades_Empty(t *testing.T) {
	metrics := AnalyzeClosedTrades(nil)
	assert.Equal(t, 0, metrics.TotalTrades)
	assert.Equal(t, 0.0, metrics.WinRate)
	assert.Empty(t, metrics.CloseReasons)
}

func TestAnalyzeClosedTrades_IgnoresOpenTrades(t *testing.T) {
	now := time.Now().UTC()
	trades := []*domain.Trade{
		closedTrade(10.0, domain.CloseReasonTargetHit, now),
		{Ticker: "TESTCOIN", Status: domain.StatusWaiting},
		{Ticker: "TESTCOIN", Status: domain.StatusActive},
	}
	metrics := AnalyzeClosedTrades(trades)
	assert.Equal(t, 1, metrics.TotalTrades)
}

func TestAnalyzeClosedTrades_Metrics(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade(10.0, domain.CloseReasonTargetHit, base),
		closedTrade(20.0, domain.CloseReasonTargetHit, base.Add(24*time.Hour)),
		closedTrade(-5.0, domain.CloseReasonStopHit, base.Add(48*time.Hour)),
		closedTrade(-10.0, domain.CloseReasonUserOverridePrefix+"changed my mind", base.Add(31*24*time.Hour)),
	}

	metrics := AnalyzeClosedTrades(trades)

	assert.Equal(t, 4, metrics.TotalTrades)
	assert.Equal(t, 2, metrics.WinningTrades)
	assert.Equal(t, 2, metrics.LosingTrades)
	assert.InDelta(t, 0.5, metrics.WinRate, 1e-9)
	assert.InDelta(t, 15.0, metrics.TotalRealized, 1e-9)
	assert.InDelta(t, 15.0, metrics.AverageWin, 1e-9)
	assert.InDelta(t, -7.5, metrics.AverageLoss, 1e-9)
	assert.InDelta(t, 2.0, metrics.ProfitFactor, 1e-9) // 30 won / 15 lost
	assert.InDelta(t, 3.75, metrics.Expectancy, 1e-9)

	assert.Equal(t, 2, metrics.MaxConsecutiveWins)
	assert.Equal(t, 2, metrics.MaxConsecutiveLosses)
	assert.Equal(t, 2*time.Hour, metrics.AverageHoldDuration)

	// Free-form override notes are grouped under one bucket.
	assert.Equal(t, 2, metrics.CloseReasons[domain.CloseReasonTargetHit])
	assert.Equal(t, 1, metrics.CloseReasons[domain.CloseReasonStopHit])
	assert.Equal(t, 1, metrics.CloseReasons["user_override"])
}

func TestAnalyzeClosedTrades_NeverTriggered(t *testing.T) {
	now := time.Now().UTC()
	cancelled := closedTrade(0.0, domain.CloseReasonUserOverridePrefix+"setup invalidated", now)
	cancelled.TriggerTime = time.Time{} // closed straight from the waiting state

	metrics := AnalyzeClosedTrades([]*domain.Trade{cancelled})
	assert.Equal(t, 1, metrics.NeverTriggered)
	assert.Equal(t, time.Duration(0), metrics.AverageHoldDuration)
}

func TestMonthlyPnLSorted(t *testing.T) {
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade(-5.0, domain.CloseReasonStopHit, feb),
		closedTrade(10.0, domain.CloseReasonTargetHit, jan),
		closedTrade(7.0, domain.CloseReasonTargetHit, jan.Add(24*time.Hour)),
	}

	metrics := AnalyzeClosedTrades(trades)
	months := metrics.MonthlyPnLSorted()
	require.Len(t, months, 2)
	assert.Equal(t, time.January, months[0].Month.Month())
	assert.InDelta(t, 17.0, months[0].PnL, 1e-9)
	assert.Equal(t, time.February, months[1].Month.Month())
	assert.InDelta(t, -5.0, months[1].PnL, 1e-9)
}
