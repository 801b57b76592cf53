package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// WriteTradesToCSV exports trades to a CSV file, one row per trade.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{
		"id", "ticker", "timeframe", "action", "status", "entry_strategy",
		"entry_price", "target_price", "stop_loss",
		"trigger_time", "trigger_price",
		"close_time", "close_price", "close_reason", "realized_pnl",
		"max_favorable_price", "max_adverse_price", "created_at",
	})

	for _, t := range trades {
		writer.Write([]string{
			t.ID,
			t.Ticker,
			t.Timeframe,
			string(t.Action),
			string(t.Status),
			string(t.EntryStrategy),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.TargetPrice, 'f', -1, 64),
			strconv.FormatFloat(t.StopLoss, 'f', -1, 64),
			formatTime(t.TriggerTime),
			strconv.FormatFloat(t.TriggerPrice, 'f', -1, 64),
			formatTime(t.CloseTime),
			strconv.FormatFloat(t.ClosePrice, 'f', -1, 64),
			t.CloseReason,
			strconv.FormatFloat(t.RealizedPnL, 'f', -1, 64),
			strconv.FormatFloat(t.MaxFavorablePrice, 'f', -1, 64),
			strconv.FormatFloat(t.MaxAdversePrice, 'f', -1, 64),
			formatTime(t.CreatedAt),
		})
	}
	return writer.Error()
}

// formatTime renders a timestamp, or empty for the zero value ("not set").
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
