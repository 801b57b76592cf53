package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/ports"
)

// --- Mocks ---

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// memStore is an in-memory TradeRepository and AuditRepository that enforces
// the same one-open-trade-per-ticker constraint as the SQLite adapter.
type memStore struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade
	audits []*domain.AuditRecord
	nextID int64

	createErr error
	findErr   error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{trades: make(map[string]*domain.Trade)}
}

func cloneTrade(t *domain.Trade) *domain.Trade {
	c := *t
	return &c
}

func (m *memStore) Create(ctx context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.trades {
		if existing.Ticker == trade.Ticker && existing.IsOpen() {
			return fmt.Errorf("ticker %s: %w", trade.Ticker, ports.ErrOpenTradeExists)
		}
	}
	m.trades[trade.ID] = cloneTrade(trade)
	return nil
}

func (m *memStore) Update(ctx context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.trades[trade.ID]; !ok {
		return fmt.Errorf("trade %s: %w", trade.ID, ports.ErrNotFound)
	}
	m.trades[trade.ID] = cloneTrade(trade)
	return nil
}

func (m *memStore) FindOpenByTicker(ctx context.Context, ticker string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, t := range m.trades {
		if t.Ticker == ticker && t.IsOpen() {
			return cloneTrade(t), nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trades[id]; ok {
		return cloneTrade(t), nil
	}
	return nil, nil
}

func (m *memStore) FindByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Trade, 0)
	for _, t := range m.trades {
		if t.Ticker == ticker {
			out = append(out, cloneTrade(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) FindClosedByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Trade, 0)
	for _, t := range m.trades {
		if t.Ticker == ticker && t.Status == domain.StatusClosed {
			out = append(out, cloneTrade(t))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Append(ctx context.Context, rec *domain.AuditRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	c := *rec
	m.audits = append(m.audits, &c)
	return rec.ID, nil
}

func (m *memStore) FindByTradeID(ctx context.Context, tradeID string) ([]*domain.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.AuditRecord, 0)
	for _, rec := range m.audits {
		if rec.TradeID == tradeID {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) auditEvents(tradeID string) []domain.AuditEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]domain.AuditEventType, 0)
	for _, rec := range m.audits {
		if rec.TradeID == tradeID {
			events = append(events, rec.EventType)
		}
	}
	return events
}

func newTestController(t *testing.T, store *memStore) *Controller {
	t.Helper()
	c, err := NewController(store, store, &mockLogger{})
	require.NoError(t, err)
	return c
}

func pullbackBuyPayload() *domain.AnalysisPayload {
	return &domain.AnalysisPayload{
		Action:       "buy",
		EntryPrice:   95.0,
		TargetPrice:  110.0,
		StopLoss:     90.0,
		CurrentPrice: 100.0,
		EntryStrategyInfo: &domain.EntryStrategyInfo{
			Strategy:       "pullback",
			EntryCondition: "wait for pullback to 95",
		},
	}
}

func candle(ticker string, low, high, close float64) domain.PriceSample {
	return domain.PriceSample{
		Ticker:    ticker,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Low:       low,
		High:      high,
		Close:     close,
	}
}

// --- Tests ---

func TestController_IngestAnalysis(t *testing.T) {
	tests := []struct {
		name       string
		payload    *domain.AnalysisPayload
		wantTrade  bool
		wantStatus domain.TradeStatus
	}{
		{
			name:       "actionable buy creates a waiting trade",
			payload:    pullbackBuyPayload(),
			wantTrade:  true,
			wantStatus: domain.StatusWaiting,
		},
		{
			name:      "hold action creates nothing",
			payload:   &domain.AnalysisPayload{Action: "hold", EntryPrice: 95.0},
			wantTrade: false,
		},
		{
			name: "maintain assessment creates nothing",
			payload: func() *domain.AnalysisPayload {
				p := pullbackBuyPayload()
				p.ContextAssessment = &domain.ContextAssessment{PreviousPositionStatus: "maintain"}
				return p
			}(),
			wantTrade: false,
		},
		{
			name: "immediate entry at market activates directly",
			payload: &domain.AnalysisPayload{
				Action:       "buy",
				EntryPrice:   100.0,
				TargetPrice:  110.0,
				StopLoss:     95.0,
				CurrentPrice: 100.05,
				EntryStrategyInfo: &domain.EntryStrategyInfo{
					Strategy: "immediate",
				},
			},
			wantTrade:  true,
			wantStatus: domain.StatusActive,
		},
		{
			name: "immediate entry far from market still waits",
			payload: &domain.AnalysisPayload{
				Action:       "buy",
				EntryPrice:   100.0,
				CurrentPrice: 104.0,
				EntryStrategyInfo: &domain.EntryStrategyInfo{
					Strategy: "immediate",
				},
			},
			wantTrade:  true,
			wantStatus: domain.StatusWaiting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			ctrl := newTestController(t, store)
			ctx := context.Background()

			id, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", tt.payload)
			require.NoError(t, err)

			if !tt.wantTrade {
				assert.Empty(t, id)
				open, err := ctrl.GetOpenTrade(ctx, "TESTCOIN")
				require.NoError(t, err)
				assert.Nil(t, open)
				return
			}

			require.NotEmpty(t, id)
			open, err := ctrl.GetOpenTrade(ctx, "TESTCOIN")
			require.NoError(t, err)
			require.NotNil(t, open)
			assert.Equal(t, id, open.ID)
			assert.Equal(t, tt.wantStatus, open.Status)
			assert.Equal(t, "TESTCOIN", open.Ticker)

			events := store.auditEvents(id)
			require.NotEmpty(t, events)
			assert.Equal(t, domain.AuditCreated, events[0])
			if tt.wantStatus == domain.StatusActive {
				require.Len(t, events, 2)
				assert.Equal(t, domain.AuditTriggered, events[1])
			}
		})
	}
}

func TestController_IngestAnalysis_SkipsWhenTradeIsOpen(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	first, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A fresh analysis for the same ticker must not replace the live trade;
	// the existing trade's id comes back instead.
	second := pullbackBuyPayload()
	second.EntryPrice = 97.0
	got, err := ctrl.IngestAnalysis(ctx, "testcoin ", "1h", "analysis-2", second)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	open, err := ctrl.GetOpenTrade(ctx, "TESTCOIN")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, 95.0, open.EntryPrice)
}

func TestController_IngestAnalysis_ConcurrentSingleOpen(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", fmt.Sprintf("analysis-%d", i), pullbackBuyPayload())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Everyone must have converged on the same single open trade.
	open, err := ctrl.GetOpenTrade(ctx, "TESTCOIN")
	require.NoError(t, err)
	require.NotNil(t, open)
	for _, id := range ids {
		assert.Equal(t, open.ID, id)
	}

	history, err := ctrl.GetHistory(ctx, "TESTCOIN", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// Full lifecycle: WAITING on ingest, ACTIVE on a dip to entry, progress while
// open, CLOSED when the target is crossed.
func TestController_Lifecycle(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	id, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Candle stays above entry: nothing happens.
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 96.0, 101.0, 100.0)))
	open, err := ctrl.GetOpenTrade(ctx, "TESTCOIN")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, open.Status)

	// Candle low dips to 94.5: trigger fires and the fill is the entry level.
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 94.5, 99.0, 98.0)))
	open, err = ctrl.GetOpenTrade(ctx, "TESTCOIN")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, domain.StatusActive, open.Status)
	assert.Equal(t, 95.0, open.TriggerPrice)
	assert.False(t, open.TriggerTime.IsZero())

	// Progress update at 105: +10 unrealized, extremes extend.
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 102.0, 106.0, 105.0)))
	open, err = ctrl.GetOpenTrade(ctx, "TESTCOIN")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, open.UnrealizedPnL, 1e-9)
	assert.Equal(t, 105.0, open.MaxFavorablePrice)

	// Close crosses the 110 target: auto-close with realized P&L from entry.
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 108.0, 111.0, 110.5)))
	open, err = ctrl.GetOpenTrade(ctx, "TESTCOIN")
	require.NoError(t, err)
	assert.Nil(t, open)

	history, err := ctrl.GetHistory(ctx, "TESTCOIN", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	closed := history[0]
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, domain.CloseReasonTargetHit, closed.CloseReason)
	assert.Equal(t, 110.5, closed.ClosePrice)
	assert.InDelta(t, 15.5, closed.RealizedPnL, 1e-9)

	events := store.auditEvents(id)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.AuditCreated, events[0])
	assert.Equal(t, domain.AuditClosed, events[len(events)-1])
	assert.Contains(t, events, domain.AuditTriggered)
	assert.Contains(t, events, domain.AuditProgressUpdate)

	// Further samples for the ticker are no-ops once the trade is closed.
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 80.0, 85.0, 82.0)))
	history, err = ctrl.GetHistory(ctx, "TESTCOIN", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestController_StopLossClose(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	_, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
	require.NoError(t, err)

	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 94.5, 99.0, 98.0)))
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 88.0, 95.0, 89.5)))

	history, err := ctrl.GetHistory(ctx, "TESTCOIN", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusClosed, history[0].Status)
	assert.Equal(t, domain.CloseReasonStopHit, history[0].CloseReason)
	assert.InDelta(t, -5.5, history[0].RealizedPnL, 1e-9)
}

func TestController_ProcessPriceSample_Validation(t *testing.T) {
	ctrl := newTestController(t, newMemStore())
	ctx := context.Background()

	err := ctrl.ProcessPriceSample(ctx, domain.PriceSample{Ticker: "TESTCOIN", Low: -1, High: 2, Close: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrValidation)

	// Sample for an untracked ticker is a clean no-op.
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("NOTRADE", 1.0, 2.0, 1.5)))
}

func TestController_RequestClose(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	// No trade yet.
	closed, err := ctrl.RequestClose(ctx, "TESTCOIN", 100.0, "timeframe_expired")
	require.NoError(t, err)
	assert.False(t, closed)

	_, err = ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
	require.NoError(t, err)

	// Still WAITING: RequestClose only applies to active trades.
	closed, err = ctrl.RequestClose(ctx, "TESTCOIN", 100.0, "timeframe_expired")
	require.NoError(t, err)
	assert.False(t, closed)

	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 94.5, 99.0, 98.0)))

	closed, err = ctrl.RequestClose(ctx, "TESTCOIN", 100.0, "timeframe_expired")
	require.NoError(t, err)
	assert.True(t, closed)

	history, err := ctrl.GetHistory(ctx, "TESTCOIN", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "timeframe_expired", history[0].CloseReason)
	assert.InDelta(t, 5.0, history[0].RealizedPnL, 1e-9)
}

func TestController_RequestClose_LevelsStillWin(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	_, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
	require.NoError(t, err)
	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 94.5, 99.0, 98.0)))

	// The supplied price is already through the target, so the close reason is
	// the target crossing, not the external one.
	closed, err := ctrl.RequestClose(ctx, "TESTCOIN", 111.0, "ai_recommended_close")
	require.NoError(t, err)
	assert.True(t, closed)

	history, err := ctrl.GetHistory(ctx, "TESTCOIN", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.CloseReasonTargetHit, history[0].CloseReason)
}

func TestController_CloseByUser(t *testing.T) {
	tests := []struct {
		name         string
		activate     bool
		closePrice   float64
		wantRealized float64
	}{
		{
			name:         "waiting trade closes with zero realized",
			activate:     false,
			closePrice:   100.0,
			wantRealized: 0.0,
		},
		{
			name:         "active trade realizes pnl at the close price",
			activate:     true,
			closePrice:   103.0,
			wantRealized: 8.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			ctrl := newTestController(t, store)
			ctx := context.Background()

			id, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
			require.NoError(t, err)
			if tt.activate {
				require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 94.5, 99.0, 98.0)))
			}

			closed, err := ctrl.CloseByUser(ctx, "TESTCOIN", tt.closePrice, "changed my mind")
			require.NoError(t, err)
			assert.True(t, closed)

			trade, err := store.FindByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, trade)
			assert.Equal(t, domain.StatusClosed, trade.Status)
			assert.True(t, strings.HasPrefix(trade.CloseReason, domain.CloseReasonUserOverridePrefix))
			assert.Equal(t, domain.CloseReasonUserOverridePrefix+"changed my mind", trade.CloseReason)
			assert.InDelta(t, tt.wantRealized, trade.RealizedPnL, 1e-9)
			if !tt.activate {
				// Never triggered: no trigger data on the closed record.
				assert.True(t, trade.TriggerTime.IsZero())
			}

			events := store.auditEvents(id)
			assert.Equal(t, domain.AuditUserOverride, events[len(events)-1])

			// Closing again reports no open trade instead of failing.
			closed, err = ctrl.CloseByUser(ctx, "TESTCOIN", tt.closePrice, "again")
			require.NoError(t, err)
			assert.False(t, closed)
		})
	}
}

func TestController_GetAIContext(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	// No open trade: nil context, no error.
	tc, err := ctrl.GetAIContext(ctx, "TESTCOIN", 100.0)
	require.NoError(t, err)
	assert.Nil(t, tc)

	id, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
	require.NoError(t, err)

	tc, err = ctrl.GetAIContext(ctx, "TESTCOIN", 100.0)
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, id, tc.TradeID)
	assert.Equal(t, domain.StatusWaiting, tc.Status)
	assert.Contains(t, tc.Message, "maintain existing waiting")

	require.NoError(t, ctrl.ProcessPriceSample(ctx, candle("TESTCOIN", 94.5, 99.0, 98.0)))

	tc, err = ctrl.GetAIContext(ctx, "TESTCOIN", 105.0)
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, domain.StatusActive, tc.Status)
	assert.InDelta(t, 10.0, tc.UnrealizedPnL, 1e-9)
	assert.Contains(t, tc.Message, "position is active")
}

func TestController_GetAuditTrail(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(t, store)
	ctx := context.Background()

	id, err := ctrl.IngestAnalysis(ctx, "TESTCOIN", "1h", "analysis-1", pullbackBuyPayload())
	require.NoError(t, err)

	records, err := ctrl.GetAuditTrail(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.AuditCreated, records[0].EventType)
	assert.NotEmpty(t, records[0].Payload)
}

func TestNewController_MissingDependencies(t *testing.T) {
	store := newMemStore()
	_, err := NewController(nil, store, &mockLogger{})
	assert.Error(t, err)
	_, err = NewController(store, nil, &mockLogger{})
	assert.Error(t, err)
	_, err = NewController(store, store, nil)
	assert.Error(t, err)
}
