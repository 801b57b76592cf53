package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/ports"
)

// immediateEntryTolerance is the relative distance within which an
// immediate-strategy entry is considered already satisfied at ingestion time,
// activating the trade without waiting for a price sample.
const immediateEntryTolerance = 0.001 // 0.1%

// Controller orchestrates the trade lifecycle: it turns extracted analysis
// intents into tracked trades, routes price samples to trigger evaluation or
// progress tracking, and exposes the query/close surface consumed by the API
// layer and the AI collaborator.
//
// All mutating operations for a ticker are serialized behind a per-ticker
// lock; operations on different tickers run in parallel.
type Controller struct {
	tradeRepo ports.TradeRepository
	auditRepo ports.AuditRepository
	logger    ports.Logger
	locks     *tickerLocks
	now       func() time.Time
}

// NewController creates a lifecycle controller with its injected dependencies.
func NewController(tradeRepo ports.TradeRepository, auditRepo ports.AuditRepository, logger ports.Logger) (*Controller, error) {
	if tradeRepo == nil || auditRepo == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Controller")
	}
	return &Controller{
		tradeRepo: tradeRepo,
		auditRepo: auditRepo,
		logger:    logger,
		locks:     newTickerLocks(),
		now:       time.Now,
	}, nil
}

// IngestAnalysis feeds a new analysis payload into the engine. It returns the
// id of the trade now tracking the ticker: a newly created one, the already
// open one (a fresh analysis never silently overwrites a live position), or ""
// when the payload carries no actionable trade.
func (c *Controller) IngestAnalysis(ctx context.Context, ticker, timeframe, analysisID string, payload *domain.AnalysisPayload) (string, error) {
	op := "IngestAnalysis"
	ticker = domain.NormalizeTicker(ticker)
	if ticker == "" {
		return "", fmt.Errorf("%s: ticker is required: %w", op, ports.ErrValidation)
	}

	intent := ExtractIntent(payload)
	if intent == nil {
		c.logger.Debug(ctx, op+": no actionable trade in analysis", map[string]interface{}{"ticker": ticker, "analysisID": analysisID})
		return "", nil
	}

	lock := c.locks.forTicker(ticker)
	lock.Lock()
	defer lock.Unlock()

	existing, err := c.tradeRepo.FindOpenByTicker(ctx, ticker)
	if err != nil {
		return "", fmt.Errorf("%s: failed to check for open trade: %w", op, err)
	}
	if existing != nil {
		c.logger.Info(ctx, op+": skipping, ticker already has an open trade", map[string]interface{}{
			"ticker":  ticker,
			"tradeID": existing.ID,
			"status":  existing.Status,
		})
		return existing.ID, nil
	}

	now := c.now().UTC()
	trade := &domain.Trade{
		ID:               uuid.NewString(),
		Ticker:           ticker,
		Timeframe:        timeframe,
		SourceAnalysisID: analysisID,
		Action:           intent.Action,
		EntryPrice:       intent.EntryPrice,
		TargetPrice:      intent.TargetPrice,
		StopLoss:         intent.StopLoss,
		EntryStrategy:    intent.EntryStrategy,
		EntryCondition:   intent.EntryCondition,
		Status:           domain.StatusWaiting,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Immediate entries already at their level skip the waiting stage.
	if entrySatisfiedNow(intent) {
		trade.Status = domain.StatusActive
		trade.TriggerTime = now
		trade.TriggerPrice = intent.EntryPrice
		trade.CurrentPrice = intent.CurrentPrice
		trade.UnrealizedPnL = trade.PnLAt(intent.CurrentPrice)
		trade.MaxFavorablePrice = intent.EntryPrice
		trade.MaxAdversePrice = intent.EntryPrice
	}

	if err := c.tradeRepo.Create(ctx, trade); err != nil {
		if errors.Is(err, ports.ErrOpenTradeExists) {
			// Lost a race with another writer (e.g. a second process sharing
			// the store); defer to the trade that won.
			open, findErr := c.tradeRepo.FindOpenByTicker(ctx, ticker)
			if findErr == nil && open != nil {
				c.logger.Warn(ctx, op+": create conflicted with an existing open trade", map[string]interface{}{"ticker": ticker, "tradeID": open.ID})
				return open.ID, nil
			}
		}
		return "", fmt.Errorf("%s: failed to create trade: %w", op, err)
	}

	c.appendAudit(ctx, trade, domain.AuditCreated)
	if trade.Status == domain.StatusActive {
		c.appendAudit(ctx, trade, domain.AuditTriggered)
	}
	c.logger.Info(ctx, op+": trade created", map[string]interface{}{
		"ticker":        ticker,
		"tradeID":       trade.ID,
		"action":        trade.Action,
		"entryPrice":    trade.EntryPrice,
		"entryStrategy": trade.EntryStrategy,
		"status":        trade.Status,
	})
	return trade.ID, nil
}

// ProcessPriceSample routes a new price sample to the ticker's open trade:
// trigger evaluation while WAITING, progress tracking while ACTIVE. A sample
// for a ticker with no open trade is a no-op.
func (c *Controller) ProcessPriceSample(ctx context.Context, sample domain.PriceSample) error {
	op := "ProcessPriceSample"
	if !sample.Valid() {
		return fmt.Errorf("%s: malformed price sample for %q: %w", op, sample.Ticker, ports.ErrValidation)
	}
	ticker := domain.NormalizeTicker(sample.Ticker)

	lock := c.locks.forTicker(ticker)
	lock.Lock()
	defer lock.Unlock()

	trade, err := c.tradeRepo.FindOpenByTicker(ctx, ticker)
	if err != nil {
		return fmt.Errorf("%s: failed to look up open trade: %w", op, err)
	}
	if trade == nil {
		return nil
	}

	switch trade.Status {
	case domain.StatusWaiting:
		return c.applyTrigger(ctx, trade, sample)
	case domain.StatusActive:
		_, err := c.applyProgress(ctx, trade, sample.Close, "")
		return err
	default:
		return nil
	}
}

// RequestClose asks the engine to close the ticker's ACTIVE trade for an
// externally supplied reason (AI-recommended close, timeframe expiry). Target
// and stop crossings at the supplied price still take precedence over the
// external reason. Returns false if the ticker has no ACTIVE trade.
func (c *Controller) RequestClose(ctx context.Context, ticker string, currentPrice float64, reason string) (bool, error) {
	op := "RequestClose"
	if currentPrice <= 0 || reason == "" {
		return false, fmt.Errorf("%s: positive price and reason are required: %w", op, ports.ErrValidation)
	}
	ticker = domain.NormalizeTicker(ticker)

	lock := c.locks.forTicker(ticker)
	lock.Lock()
	defer lock.Unlock()

	trade, err := c.tradeRepo.FindOpenByTicker(ctx, ticker)
	if err != nil {
		return false, fmt.Errorf("%s: failed to look up open trade: %w", op, err)
	}
	if trade == nil || trade.Status != domain.StatusActive {
		return false, nil
	}

	res, err := c.applyProgress(ctx, trade, currentPrice, reason)
	if err != nil {
		return false, err
	}
	return res.ExitTriggered, nil
}

// CloseByUser forcibly closes the ticker's open trade (WAITING or ACTIVE).
// A trade that never entered closes with zero realized P&L and never passes
// through trigger assignment. Returns false if no open trade exists.
func (c *Controller) CloseByUser(ctx context.Context, ticker string, currentPrice float64, reason string) (bool, error) {
	op := "CloseByUser"
	if currentPrice <= 0 {
		return false, fmt.Errorf("%s: positive price is required: %w", op, ports.ErrValidation)
	}
	ticker = domain.NormalizeTicker(ticker)

	lock := c.locks.forTicker(ticker)
	lock.Lock()
	defer lock.Unlock()

	trade, err := c.tradeRepo.FindOpenByTicker(ctx, ticker)
	if err != nil {
		return false, fmt.Errorf("%s: failed to look up open trade: %w", op, err)
	}
	if trade == nil {
		c.logger.Warn(ctx, op+": no open trade to close", map[string]interface{}{"ticker": ticker})
		return false, nil
	}

	now := c.now().UTC()
	wasActive := trade.Status == domain.StatusActive
	trade.Status = domain.StatusClosed
	trade.CloseTime = now
	trade.ClosePrice = currentPrice
	trade.CloseReason = domain.CloseReasonUserOverridePrefix + reason
	if wasActive {
		trade.CurrentPrice = currentPrice
		trade.UnrealizedPnL = trade.PnLAt(currentPrice)
		trade.RealizedPnL = trade.UnrealizedPnL
	} else {
		trade.RealizedPnL = 0
	}
	trade.UpdatedAt = now

	if err := c.tradeRepo.Update(ctx, trade); err != nil {
		return false, fmt.Errorf("%s: failed to persist user close: %w", op, err)
	}
	c.appendAudit(ctx, trade, domain.AuditUserOverride)
	c.logger.Info(ctx, op+": trade closed by user", map[string]interface{}{
		"ticker":      ticker,
		"tradeID":     trade.ID,
		"closeReason": trade.CloseReason,
		"realizedPnL": trade.RealizedPnL,
		"wasActive":   wasActive,
	})
	return true, nil
}

// GetOpenTrade retrieves the ticker's open trade, or nil if there is none.
func (c *Controller) GetOpenTrade(ctx context.Context, ticker string) (*domain.Trade, error) {
	return c.tradeRepo.FindOpenByTicker(ctx, domain.NormalizeTicker(ticker))
}

// GetHistory retrieves the ticker's trades regardless of status, newest first.
func (c *Controller) GetHistory(ctx context.Context, ticker string, limit int) ([]*domain.Trade, error) {
	return c.tradeRepo.FindByTicker(ctx, domain.NormalizeTicker(ticker), limit)
}

// GetAuditTrail retrieves a trade's transition log, oldest first.
func (c *Controller) GetAuditTrail(ctx context.Context, tradeID string) ([]*domain.AuditRecord, error) {
	return c.auditRepo.FindByTradeID(ctx, tradeID)
}

// TradeContext summarizes an open trade for the AI collaborator so a follow-up
// analysis can be told about the position it is assessing.
type TradeContext struct {
	TradeID       string             `json:"trade_id"`
	Ticker        string             `json:"ticker"`
	Status        domain.TradeStatus `json:"status"`
	Action        domain.TradeAction `json:"action"`
	EntryPrice    float64            `json:"entry_price"`
	TargetPrice   float64            `json:"target_price,omitempty"`
	StopLoss      float64            `json:"stop_loss,omitempty"`
	CurrentPrice  float64            `json:"current_price"`
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	Message       string             `json:"message"`
}

// GetAIContext builds the open-trade summary handed back to the AI
// collaborator, or nil if the ticker has no open trade.
func (c *Controller) GetAIContext(ctx context.Context, ticker string, currentPrice float64) (*TradeContext, error) {
	ticker = domain.NormalizeTicker(ticker)
	trade, err := c.tradeRepo.FindOpenByTicker(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("GetAIContext: failed to look up open trade: %w", err)
	}
	if trade == nil {
		return nil, nil
	}

	tc := &TradeContext{
		TradeID:      trade.ID,
		Ticker:       trade.Ticker,
		Status:       trade.Status,
		Action:       trade.Action,
		EntryPrice:   trade.EntryPrice,
		TargetPrice:  trade.TargetPrice,
		StopLoss:     trade.StopLoss,
		CurrentPrice: currentPrice,
	}
	switch trade.Status {
	case domain.StatusWaiting:
		tc.Message = fmt.Sprintf("maintain existing waiting %s order at $%.2f unless the setup is invalidated", trade.Action, trade.EntryPrice)
	case domain.StatusActive:
		tc.UnrealizedPnL = trade.PnLAt(currentPrice)
		tc.Message = fmt.Sprintf("position is active, currently $%.2f P&L from entry at $%.2f", tc.UnrealizedPnL, trade.EntryPrice)
	}
	return tc, nil
}

// --- Private helpers ---

// applyTrigger evaluates and, if fired, applies the WAITING -> ACTIVE edge.
// Assumes the ticker lock is held.
func (c *Controller) applyTrigger(ctx context.Context, trade *domain.Trade, sample domain.PriceSample) error {
	op := "applyTrigger"
	result := EvaluateTrigger(trade, sample)
	if result == nil {
		return nil
	}

	trade.Status = domain.StatusActive
	trade.TriggerTime = result.TriggerTime
	trade.TriggerPrice = result.TriggerPrice
	trade.MaxFavorablePrice = result.TriggerPrice
	trade.MaxAdversePrice = result.TriggerPrice
	trade.CurrentPrice = sample.Close
	trade.UnrealizedPnL = trade.PnLAt(sample.Close)
	trade.UpdatedAt = c.now().UTC()

	if err := c.tradeRepo.Update(ctx, trade); err != nil {
		return fmt.Errorf("%s: failed to persist trigger: %w", op, err)
	}
	c.appendAudit(ctx, trade, domain.AuditTriggered)
	c.logger.Info(ctx, op+": entry condition fired", map[string]interface{}{
		"ticker":       trade.Ticker,
		"tradeID":      trade.ID,
		"triggerPrice": trade.TriggerPrice,
		"sampleLow":    sample.Low,
		"sampleHigh":   sample.High,
	})
	return nil
}

// applyProgress marks an ACTIVE trade at currentPrice, evaluates exits, and
// persists the outcome. Assumes the ticker lock is held.
func (c *Controller) applyProgress(ctx context.Context, trade *domain.Trade, currentPrice float64, externalCloseReason string) (ProgressResult, error) {
	op := "applyProgress"
	if trade.Status != domain.StatusActive {
		return ProgressResult{}, fmt.Errorf("%s: trade %s is %s: %w", op, trade.ID, trade.Status, ports.ErrTradeClosed)
	}

	res := ComputeProgress(trade, currentPrice, externalCloseReason)
	now := c.now().UTC()

	trade.CurrentPrice = currentPrice
	trade.UnrealizedPnL = res.UnrealizedPnL
	trade.MaxFavorablePrice = res.MaxFavorablePrice
	trade.MaxAdversePrice = res.MaxAdversePrice
	trade.UpdatedAt = now

	event := domain.AuditProgressUpdate
	if res.ExitTriggered {
		trade.Status = domain.StatusClosed
		trade.CloseTime = now
		trade.ClosePrice = currentPrice
		trade.CloseReason = res.ExitReason
		trade.RealizedPnL = res.UnrealizedPnL
		event = domain.AuditClosed
	}

	if err := c.tradeRepo.Update(ctx, trade); err != nil {
		return ProgressResult{}, fmt.Errorf("%s: failed to persist progress: %w", op, err)
	}
	c.appendAudit(ctx, trade, event)

	if res.ExitTriggered {
		c.logger.Info(ctx, op+": trade auto-closed", map[string]interface{}{
			"ticker":      trade.Ticker,
			"tradeID":     trade.ID,
			"closeReason": trade.CloseReason,
			"closePrice":  trade.ClosePrice,
			"realizedPnL": trade.RealizedPnL,
		})
	} else {
		c.logger.Debug(ctx, op+": progress updated", map[string]interface{}{
			"ticker":        trade.Ticker,
			"tradeID":       trade.ID,
			"currentPrice":  currentPrice,
			"unrealizedPnL": res.UnrealizedPnL,
		})
	}
	return res, nil
}

// appendAudit writes a snapshot record for the trade. Audit failures are
// logged, never surfaced: losing one history row must not roll back a
// committed state transition.
func (c *Controller) appendAudit(ctx context.Context, trade *domain.Trade, event domain.AuditEventType) {
	snapshot, err := json.Marshal(tradeSnapshot(trade))
	if err != nil {
		c.logger.Error(ctx, err, "failed to marshal audit snapshot", map[string]interface{}{"tradeID": trade.ID, "event": event})
		return
	}
	rec := &domain.AuditRecord{
		TradeID:   trade.ID,
		EventType: event,
		Timestamp: c.now().UTC(),
		Payload:   string(snapshot),
	}
	if _, err := c.auditRepo.Append(ctx, rec); err != nil {
		c.logger.Error(ctx, err, "failed to append audit record", map[string]interface{}{"tradeID": trade.ID, "event": event})
	}
}

// tradeSnapshot is the free-form payload stored with each audit record.
func tradeSnapshot(t *domain.Trade) map[string]interface{} {
	snap := map[string]interface{}{
		"ticker":         t.Ticker,
		"status":         t.Status,
		"action":         t.Action,
		"entry_price":    t.EntryPrice,
		"entry_strategy": t.EntryStrategy,
	}
	if t.TargetPrice > 0 {
		snap["target_price"] = t.TargetPrice
	}
	if t.StopLoss > 0 {
		snap["stop_loss"] = t.StopLoss
	}
	if !t.TriggerTime.IsZero() {
		snap["trigger_price"] = t.TriggerPrice
	}
	if t.Status == domain.StatusActive {
		snap["current_price"] = t.CurrentPrice
		snap["unrealized_pnl"] = t.UnrealizedPnL
		snap["max_favorable_price"] = t.MaxFavorablePrice
		snap["max_adverse_price"] = t.MaxAdversePrice
	}
	if t.Status == domain.StatusClosed {
		snap["close_price"] = t.ClosePrice
		snap["close_reason"] = t.CloseReason
		snap["realized_pnl"] = t.RealizedPnL
	}
	return snap
}

// entrySatisfiedNow reports whether an immediate-strategy intent is already at
// its entry level at the analysis-time price.
func entrySatisfiedNow(intent *domain.TradeIntent) bool {
	if intent.EntryStrategy != domain.EntryImmediate || intent.CurrentPrice <= 0 {
		return false
	}
	return math.Abs(intent.CurrentPrice-intent.EntryPrice)/intent.EntryPrice <= immediateEntryTolerance
}
