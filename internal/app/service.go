package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/config"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/engine"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/ports"
)

// TrackerService connects the price feed to the lifecycle engine: it streams
// candles for every configured ticker and hands each closed candle to the
// controller, which evaluates triggers and exits against the ticker's open
// trade. Analysis ingestion and the query surface are driven externally via
// the controller; this service only supplies the price side.
type TrackerService struct {
	cfg        *config.Config
	logger     ports.Logger
	feed       ports.PriceFeed
	controller *engine.Controller
}

// NewTrackerService creates a new application service instance.
func NewTrackerService(
	cfg *config.Config,
	logger ports.Logger,
	feed ports.PriceFeed,
	controller *engine.Controller,
) (*TrackerService, error) {
	if cfg == nil || logger == nil || feed == nil || controller == nil {
		return nil, fmt.Errorf("missing required dependencies for TrackerService")
	}
	if len(cfg.Tickers) == 0 {
		return nil, fmt.Errorf("at least one ticker must be configured")
	}
	if cfg.CandleInterval == "" {
		return nil, fmt.Errorf("candle interval must be configured")
	}
	return &TrackerService{
		cfg:        cfg,
		logger:     logger,
		feed:       feed,
		controller: controller,
	}, nil
}

// Start begins streaming price data for all configured tickers and blocks
// until the context is cancelled, a shutdown signal arrives, or every stream
// has stopped.
func (s *TrackerService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Tracker Service...", map[string]interface{}{
		"tickers":  s.cfg.Tickers,
		"interval": s.cfg.CandleInterval,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := s.feed.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Price feed is unreachable")
		return fmt.Errorf("failed to reach price feed: %w", err)
	}
	s.logger.Info(ctx, "Price feed reachable")

	// Backfill one recent candle per ticker so a trade created while the
	// service was down is evaluated promptly rather than waiting a full
	// interval for the first streamed candle.
	for _, ticker := range s.cfg.Tickers {
		s.backfillLatest(ctx, ticker)
	}

	// Start one stream per ticker. Streams for different tickers feed
	// different per-ticker locks in the controller, so they are independent.
	doneChs := make([]chan struct{}, 0, len(s.cfg.Tickers))
	stopChs := make([]chan struct{}, 0, len(s.cfg.Tickers))
	for _, ticker := range s.cfg.Tickers {
		doneCh, stopCh, err := s.feed.StreamCandles(ctx, ticker, s.cfg.CandleInterval, s.handleCandle, s.handleFeedError)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to start candle stream", map[string]interface{}{"ticker": ticker})
			cancel()
			s.stopStreams(ctx, stopChs, doneChs)
			return fmt.Errorf("failed to start candle stream for %s: %w", ticker, err)
		}
		doneChs = append(doneChs, doneCh)
		stopChs = append(stopChs, stopCh)
		s.logger.Info(ctx, "Candle stream started", map[string]interface{}{"ticker": ticker, "interval": s.cfg.CandleInterval})
	}

	// Wait for cancellation or for all streams to stop on their own.
	allDone := make(chan struct{})
	go func() {
		for _, ch := range doneChs {
			<-ch
		}
		close(allDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
		s.stopStreams(ctx, stopChs, doneChs)
	case <-allDone:
		s.logger.Error(ctx, fmt.Errorf("all candle streams stopped"), "Price streams stopped unexpectedly")
		return fmt.Errorf("candle streams stopped unexpectedly")
	}

	s.logger.Info(ctx, "Tracker Service stopped.")
	return nil
}

// handleCandle feeds one closed candle into the lifecycle engine.
func (s *TrackerService) handleCandle(sample domain.PriceSample) {
	// Streams outlive any single request; use a background context for handlers.
	ctx := context.Background()
	if err := s.controller.ProcessPriceSample(ctx, sample); err != nil {
		s.logger.Error(ctx, err, "Failed to process price sample", map[string]interface{}{
			"ticker":    sample.Ticker,
			"timestamp": sample.Timestamp,
			"close":     sample.Close,
		})
	}
}

// handleFeedError handles errors reported by a candle stream. Reconnection is
// handled inside the feed adapter; this is for visibility only.
func (s *TrackerService) handleFeedError(err error) {
	s.logger.Error(context.Background(), err, "Candle stream error reported")
}

// backfillLatest fetches the most recent closed candle for a ticker and runs
// it through the engine. Failures are logged and skipped; the stream will
// deliver fresh candles regardless.
func (s *TrackerService) backfillLatest(ctx context.Context, ticker string) {
	op := "backfillLatest"
	samples, err := s.feed.GetCandles(ctx, ticker, s.cfg.CandleInterval, 1)
	if err != nil {
		s.logger.Warn(ctx, op+": failed to fetch latest candle, skipping", map[string]interface{}{"ticker": ticker, "error": err.Error()})
		return
	}
	if len(samples) == 0 {
		return
	}
	if err := s.controller.ProcessPriceSample(ctx, samples[len(samples)-1]); err != nil {
		s.logger.Error(ctx, err, op+": failed to process backfilled candle", map[string]interface{}{"ticker": ticker})
	}
}

// stopStreams signals every stream to stop and waits briefly for each to close.
func (s *TrackerService) stopStreams(ctx context.Context, stopChs, doneChs []chan struct{}) {
	for _, stopCh := range stopChs {
		select {
		case stopCh <- struct{}{}:
		default:
		}
	}
	deadline := time.After(5 * time.Second)
	for _, doneCh := range doneChs {
		select {
		case <-doneCh:
		case <-deadline:
			s.logger.Warn(ctx, "Timeout waiting for candle stream to shut down")
			return
		}
	}
	s.logger.Info(ctx, "All candle streams shut down gracefully")
}
