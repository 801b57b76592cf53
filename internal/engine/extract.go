package engine

import (
	"strings"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// statusMaintain is the upstream AI's instruction to keep the status quo. It is
// a hard override: an analysis carrying it must never spawn or replace a trade.
const statusMaintain = "MAINTAIN"

// ExtractIntent parses an incoming analysis payload into a normalized trade
// intent, or returns nil when the analysis is informational only and no trade
// should be created. Pure function of its input; no side effects.
func ExtractIntent(payload *domain.AnalysisPayload) *domain.TradeIntent {
	if payload == nil {
		return nil
	}

	// A MAINTAIN assessment suppresses extraction regardless of action or
	// prices. Every other assessment value (CLOSE, REPLACE, MODIFY, NONE,
	// absent) falls through to normal extraction.
	if payload.ContextAssessment != nil {
		if normalizePositionStatus(payload.ContextAssessment.PreviousPositionStatus) == statusMaintain {
			return nil
		}
	}

	action, ok := parseAction(payload.Action)
	if !ok {
		return nil
	}
	if payload.EntryPrice <= 0 {
		return nil
	}

	intent := &domain.TradeIntent{
		Action:        action,
		EntryPrice:    payload.EntryPrice,
		TargetPrice:   payload.TargetPrice,
		StopLoss:      payload.StopLoss,
		EntryStrategy: domain.EntryUnknown,
		CurrentPrice:  payload.CurrentPrice,
	}
	if payload.EntryStrategyInfo != nil {
		intent.EntryStrategy = domain.ParseEntryStrategy(payload.EntryStrategyInfo.Strategy)
		intent.EntryCondition = payload.EntryStrategyInfo.EntryCondition
	}
	return intent
}

// normalizePositionStatus is the single boundary where the upstream AI's
// free-form previous_position_status vocabulary is normalized (trim + upper).
func normalizePositionStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// parseAction accepts BUY/SELL in any casing; everything else (hold, wait,
// close, empty) is not an actionable trade direction.
func parseAction(s string) (domain.TradeAction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(domain.ActionBuy):
		return domain.ActionBuy, true
	case string(domain.ActionSell):
		return domain.ActionSell, true
	default:
		return "", false
	}
}
