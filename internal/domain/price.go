package domain

import "time"

// PriceSample is one observation of price action for a ticker covering the
// interval since the last check: either a full candle (low/high/close) or a
// single tick (all three equal). The engine's trigger and exit checks work on
// the low/high range so intrabar touches are not missed between polls.
type PriceSample struct {
	Ticker    string
	Timestamp time.Time
	Low       float64
	High      float64
	Close     float64
}

// TickSample builds a PriceSample from a single last-price tick.
func TickSample(ticker string, price float64, ts time.Time) PriceSample {
	return PriceSample{
		Ticker:    NormalizeTicker(ticker),
		Timestamp: ts,
		Low:       price,
		High:      price,
		Close:     price,
	}
}

// Valid reports whether the sample is usable: positive prices and a range
// whose low does not exceed its high.
func (s PriceSample) Valid() bool {
	if s.Low <= 0 || s.High <= 0 || s.Close <= 0 {
		return false
	}
	return s.Low <= s.High
}
