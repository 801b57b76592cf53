package ports

import (
	"context"
	"time"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// PriceFeed defines the interface for the market data collaborator that drives
// the lifecycle engine. It is read-only: the engine never places orders.
type PriceFeed interface {
	// GetTickerPrice retrieves the last traded price for a ticker.
	GetTickerPrice(ctx context.Context, ticker string) (float64, error)

	// GetCandles retrieves the most recent closed candles for a ticker at the
	// given interval, oldest first.
	GetCandles(ctx context.Context, ticker, interval string, limit int) ([]domain.PriceSample, error)

	// StreamCandles starts a stream of candle data. Only final (closed)
	// candles are delivered to handler. Returns channels to observe (doneCh)
	// and stop (stopCh) the stream, or an error if the connection fails.
	StreamCandles(ctx context.Context, ticker, interval string, handler func(sample domain.PriceSample), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// Ping checks connectivity to the feed.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the feed's current server time.
	GetServerTime(ctx context.Context) (time.Time, error)
}
