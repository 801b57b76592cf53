package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.PriceFeed interface using the go-binance
// library. It is a read-only market data source: candles and ticker prices
// for the lifecycle engine, never order placement.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance price feed adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance price feed adapter. API keys are optional; all
// market data endpoints used here are public.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance price feed")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance price feed configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance price feed configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1120, -1121: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrFeedUnavailable
		}
		c.logger.Error(ctx, mappedErr, "Binance API error", fields)
		return fmt.Errorf("%s failed: %w (code %d: %s)", operation, mappedErr, apiErr.Code, apiErr.Message)
	}

	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		c.logger.Error(ctx, ports.ErrConnectionFailed, "Binance connection error", fields)
		return fmt.Errorf("%s failed: %w: %v", operation, ports.ErrConnectionFailed, err)
	}

	c.logger.Error(ctx, err, "Unhandled Binance client error", fields)
	return fmt.Errorf("%s failed: %w: %v", operation, ports.ErrUnknown, err)
}

// Ping checks the connectivity to the Binance API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}

// GetServerTime retrieves the current server time from Binance.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	ts, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, "GetServerTime")
	}
	return time.UnixMilli(ts), nil
}

// GetTickerPrice retrieves the last traded price for a ticker.
func (c *Client) GetTickerPrice(ctx context.Context, ticker string) (float64, error) {
	op := "GetTickerPrice"
	prices, err := c.futuresClient.NewListPricesService().Symbol(ticker).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%s: no price returned for %s: %w", op, ticker, ports.ErrNotFound)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parsing price '%s' for %s: %w", op, prices[0].Price, ticker, err)
	}
	return price, nil
}

// GetCandles retrieves the most recent closed candles for a ticker, oldest first.
func (c *Client) GetCandles(ctx context.Context, ticker, interval string, limit int) ([]domain.PriceSample, error) {
	op := "GetCandles"
	klines, err := c.futuresClient.NewKlinesService().Symbol(ticker).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	samples := make([]domain.PriceSample, 0, len(klines))
	for _, k := range klines {
		sample, err := translateKline(ticker, k)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical candle: %w", err), op)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// StreamCandles starts a websocket candle stream for a ticker. Only final
// (closed) candles are delivered to handler. The stream reconnects with
// exponential backoff up to the configured attempt limit.
func (c *Client) StreamCandles(ctx context.Context, ticker, interval string, handler func(sample domain.PriceSample), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamCandles"
	wsCtx, cancelWs := context.WithCancel(ctx)

	binanceHandler := func(event *futures.WsKlineEvent) {
		if event == nil || !event.Kline.IsFinal {
			return
		}
		sample, terr := translateWsKline(event)
		if terr != nil {
			c.logger.Error(wsCtx, terr, op+": Failed to translate streamed candle", map[string]interface{}{"ticker": ticker})
			errHandler(terr)
			return
		}
		handler(sample)
	}

	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		c.logger.Warn(wsCtx, op+": WebSocket error reported", map[string]interface{}{"error": translatedErr})
		errHandler(translatedErr)
	}

	// Reconnection loop
	go func() {
		defer cancelWs()

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.", map[string]interface{}{"ticker": ticker, "interval": interval})
				return
			default:
				c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", map[string]interface{}{"ticker": ticker, "interval": interval, "attempt": attempt + 1})
				innerDoneCh, innerStopCh, connectErr := futures.WsKlineServe(ticker, interval, binanceHandler, binanceErrHandler)

				if connectErr != nil {
					c.handleError(wsCtx, connectErr, op+" connection attempt")
					attempt++
					if attempt >= c.maxReconnectAttempts {
						c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"ticker": ticker, "interval": interval, "maxAttempts": c.maxReconnectAttempts})
						return
					}

					delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
					c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"ticker": ticker, "interval": interval, "attempt": attempt + 1, "delay": delay.String()})

					select {
					case <-time.After(delay):
						continue
					case <-wsCtx.Done():
						return
					}
				}

				// Connection successful
				c.logger.Info(wsCtx, op+": WebSocket connection established.", map[string]interface{}{"ticker": ticker, "interval": interval})
				attempt = 0

				select {
				case <-innerDoneCh:
					c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", map[string]interface{}{"ticker": ticker, "interval": interval})
				case <-wsCtx.Done():
					c.logger.Info(wsCtx, op+": Context cancelled, stopping WebSocket.", map[string]interface{}{"ticker": ticker, "interval": interval})
					select {
					case innerStopCh <- struct{}{}:
					default:
					}
					return
				}
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	// Link the external stopCh to the internal context cancellation.
	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, cancelling WebSocket context.", map[string]interface{}{"ticker": ticker})
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	// Close the external doneCh when the internal context is done.
	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

func translateWsKline(event *futures.WsKlineEvent) (domain.PriceSample, error) {
	k := event.Kline
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}

	return domain.PriceSample{
		Ticker:    domain.NormalizeTicker(k.Symbol),
		Timestamp: time.UnixMilli(k.EndTime),
		Low:       low,
		High:      high,
		Close:     cls,
	}, nil
}

func translateKline(ticker string, k *futures.Kline) (domain.PriceSample, error) {
	if k == nil {
		return domain.PriceSample{}, errors.New("received nil historical candle")
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}

	return domain.PriceSample{
		Ticker:    domain.NormalizeTicker(ticker),
		Timestamp: time.UnixMilli(k.CloseTime),
		Low:       low,
		High:      high,
		Close:     cls,
	}, nil
}
