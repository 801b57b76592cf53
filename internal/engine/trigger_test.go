package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

func waitingTrade(action domain.TradeAction, strategy domain.EntryStrategy, entry float64) *domain.Trade {
	return &domain.Trade{
		ID:            "trade-1",
		Ticker:        "TESTCOIN",
		Action:        action,
		EntryPrice:    entry,
		EntryStrategy: strategy,
		Status:        domain.StatusWaiting,
	}
}

func sampleAt(low, high float64) domain.PriceSample {
	return domain.PriceSample{
		Ticker:    "TESTCOIN",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Low:       low,
		High:      high,
		Close:     (low + high) / 2,
	}
}

func TestEvaluateTrigger(t *testing.T) {
	tests := []struct {
		name     string
		trade    *domain.Trade
		sample   domain.PriceSample
		wantFire bool
	}{
		// BUY with a non-breakout strategy fires when price dips to the level.
		{
			name:     "buy pullback fires on dip to entry",
			trade:    waitingTrade(domain.ActionBuy, domain.EntryPullback, 95.0),
			sample:   sampleAt(94.5, 99.0),
			wantFire: true,
		},
		{
			name:     "buy pullback fires on exact touch",
			trade:    waitingTrade(domain.ActionBuy, domain.EntryPullback, 95.0),
			sample:   sampleAt(95.0, 99.0),
			wantFire: true,
		},
		{
			name:     "buy pullback does not fire above entry",
			trade:    waitingTrade(domain.ActionBuy, domain.EntryPullback, 95.0),
			sample:   sampleAt(96.0, 99.0),
			wantFire: false,
		},
		// BUY breakout fires only on an upward cross through the level.
		{
			name:     "buy breakout fires when high crosses entry",
			trade:    waitingTrade(domain.ActionBuy, domain.EntryBreakout, 105.0),
			sample:   sampleAt(100.0, 105.5),
			wantFire: true,
		},
		{
			name:     "buy breakout does not fire below entry",
			trade:    waitingTrade(domain.ActionBuy, domain.EntryBreakout, 105.0),
			sample:   sampleAt(100.0, 104.0),
			wantFire: false,
		},
		// SELL mirrors BUY.
		{
			name:     "sell retest fires on rally to entry",
			trade:    waitingTrade(domain.ActionSell, domain.EntryRetest, 105.0),
			sample:   sampleAt(101.0, 105.5),
			wantFire: true,
		},
		{
			name:     "sell retest does not fire below entry",
			trade:    waitingTrade(domain.ActionSell, domain.EntryRetest, 105.0),
			sample:   sampleAt(101.0, 104.0),
			wantFire: false,
		},
		{
			name:     "sell breakout fires when low crosses entry",
			trade:    waitingTrade(domain.ActionSell, domain.EntryBreakout, 95.0),
			sample:   sampleAt(94.0, 98.0),
			wantFire: true,
		},
		{
			name:     "sell breakout does not fire above entry",
			trade:    waitingTrade(domain.ActionSell, domain.EntryBreakout, 95.0),
			sample:   sampleAt(96.0, 98.0),
			wantFire: false,
		},
		// Unknown strategy falls into the reach-the-level rule.
		{
			name:     "buy unknown strategy uses the reach rule",
			trade:    waitingTrade(domain.ActionBuy, domain.EntryUnknown, 95.0),
			sample:   sampleAt(94.5, 99.0),
			wantFire: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateTrigger(tt.trade, tt.sample)
			if !tt.wantFire {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			// Fill is recorded at the intended level, not the overshoot price.
			assert.Equal(t, tt.trade.EntryPrice, result.TriggerPrice)
			assert.Equal(t, tt.sample.Timestamp, result.TriggerTime)
		})
	}
}

func TestEvaluateTrigger_OnlyWaitingTradesFire(t *testing.T) {
	active := waitingTrade(domain.ActionBuy, domain.EntryPullback, 95.0)
	active.Status = domain.StatusActive
	assert.Nil(t, EvaluateTrigger(active, sampleAt(90.0, 99.0)))

	closed := waitingTrade(domain.ActionBuy, domain.EntryPullback, 95.0)
	closed.Status = domain.StatusClosed
	assert.Nil(t, EvaluateTrigger(closed, sampleAt(90.0, 99.0)))

	assert.Nil(t, EvaluateTrigger(nil, sampleAt(90.0, 99.0)))
}
