package domain

// AnalysisPayload is the structured result of a chart analysis, produced by the
// AI pipeline (an external collaborator) and consumed here as plain data. The
// schema is owned upstream; only the fields the engine reads are modeled.
type AnalysisPayload struct {
	Action       string  `json:"action"`       // Recommended action, e.g. "buy", "SELL", "hold"
	EntryPrice   float64 `json:"entryPrice"`   // Recommended entry level
	TargetPrice  float64 `json:"targetPrice"`  // Recommended profit target (0 if none)
	StopLoss     float64 `json:"stopLoss"`     // Recommended stop level (0 if none)
	Reasoning    string  `json:"reasoning"`    // Free-form model commentary
	CurrentPrice float64 `json:"currentPrice"` // Market price at analysis time

	ContextAssessment *ContextAssessment `json:"context_assessment,omitempty"`
	EntryStrategyInfo *EntryStrategyInfo `json:"entry_strategy_metadata,omitempty"`
}

// ContextAssessment carries the model's view of any previously tracked position.
// PreviousPositionStatus is free-form upstream vocabulary (MAINTAIN, CLOSE,
// REPLACE, ...) and is normalized at exactly one boundary in the extractor.
type ContextAssessment struct {
	PreviousPositionStatus string `json:"previous_position_status"`
}

// EntryStrategyInfo is optional metadata describing how the recommended entry
// should be matched against price action.
type EntryStrategyInfo struct {
	Strategy       string `json:"strategy"`        // e.g. "pullback", "breakout"
	EntryCondition string `json:"entry_condition"` // Human-readable description
}

// TradeIntent is the validated, fully-typed extraction of an actionable
// analysis payload. Downstream components never see the raw payload.
type TradeIntent struct {
	Action         TradeAction
	EntryPrice     float64
	TargetPrice    float64
	StopLoss       float64
	EntryStrategy  EntryStrategy
	EntryCondition string
	CurrentPrice   float64
}
