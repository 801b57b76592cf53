package domain

import (
	"strings"
	"time"
)

// TradeAction is the direction of a recommended trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// TradeStatus represents the lifecycle stage of a tracked trade.
// Transitions only move forward: WAITING -> ACTIVE -> CLOSED, or
// WAITING -> CLOSED directly when a trade is cancelled before it triggers.
type TradeStatus string

const (
	StatusWaiting TradeStatus = "WAITING"
	StatusActive  TradeStatus = "ACTIVE"
	StatusClosed  TradeStatus = "CLOSED"
)

// EntryStrategy describes how the entry condition is matched against price.
type EntryStrategy string

const (
	EntryImmediate EntryStrategy = "immediate"
	EntryPullback  EntryStrategy = "pullback"
	EntryBreakout  EntryStrategy = "breakout"
	EntryRetest    EntryStrategy = "retest"
	EntryMaintain  EntryStrategy = "maintain"
	EntryUnknown   EntryStrategy = "unknown"
)

// ParseEntryStrategy maps a free-form strategy string from an analysis payload
// onto the closed EntryStrategy set, defaulting to EntryUnknown.
func ParseEntryStrategy(s string) EntryStrategy {
	switch EntryStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case EntryImmediate:
		return EntryImmediate
	case EntryPullback:
		return EntryPullback
	case EntryBreakout:
		return EntryBreakout
	case EntryRetest:
		return EntryRetest
	case EntryMaintain:
		return EntryMaintain
	default:
		return EntryUnknown
	}
}

// Close reasons produced by the engine. User overrides carry the
// CloseReasonUserOverridePrefix followed by the caller-supplied reason.
const (
	CloseReasonTargetHit          = "target_hit"
	CloseReasonStopHit            = "stop_hit"
	CloseReasonUserOverridePrefix = "user_override: "
)

// Trade is the central tracked entity: an AI trade recommendation followed
// from creation through trigger detection to closure.
type Trade struct {
	ID               string        // Opaque unique identifier (UUID)
	Ticker           string        // Normalized uppercase symbol
	Timeframe        string        // Chart timeframe the analysis was made on (e.g., "1h")
	SourceAnalysisID string        // Reference to the analysis that created this trade
	Action           TradeAction   // BUY or SELL
	EntryPrice       float64       // Intended entry level
	TargetPrice      float64       // Profit target (0 if not set)
	StopLoss         float64       // Stop level (0 if not set)
	EntryStrategy    EntryStrategy // How the entry condition is matched against price
	EntryCondition   string        // Human-readable entry condition, advisory only

	Status TradeStatus

	// Set exactly once at the WAITING -> ACTIVE edge.
	TriggerTime  time.Time
	TriggerPrice float64

	// Updated only while ACTIVE.
	CurrentPrice      float64
	UnrealizedPnL     float64
	MaxFavorablePrice float64 // Running best price in the trade's direction since trigger
	MaxAdversePrice   float64 // Running worst price against the trade since trigger

	// Set exactly once at the -> CLOSED edge.
	CloseTime   time.Time
	ClosePrice  float64
	CloseReason string
	RealizedPnL float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOpen reports whether the trade is still live (waiting or active).
func (t *Trade) IsOpen() bool {
	return t.Status == StatusWaiting || t.Status == StatusActive
}

// PnLAt computes the trade's profit or loss if marked at the given price:
// price - entry for BUY, entry - price for SELL.
func (t *Trade) PnLAt(price float64) float64 {
	if t.Action == ActionSell {
		return t.EntryPrice - price
	}
	return price - t.EntryPrice
}

// NormalizeTicker uppercases and trims a symbol so "testcoin " and "TESTCOIN"
// address the same tracked trade.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
