package ports

import (
	"context"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
)

// TradeRepository defines the interface for the durable trade record store.
type TradeRepository interface {
	// Create saves a new trade. Returns ErrOpenTradeExists (wrapped) if the
	// ticker already has a trade in WAITING or ACTIVE status.
	Create(ctx context.Context, trade *domain.Trade) error
	// Update modifies an existing trade by ID.
	Update(ctx context.Context, trade *domain.Trade) error
	// FindOpenByTicker retrieves the ticker's trade in WAITING or ACTIVE
	// status, if any. Returns nil, nil if no open trade is found.
	FindOpenByTicker(ctx context.Context, ticker string) (*domain.Trade, error)
	// FindByID retrieves a trade by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Trade, error)
	// FindByTicker retrieves the most recent trades for a ticker regardless of
	// status, newest first, up to limit (limit <= 0 means no limit).
	FindByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Trade, error)
	// FindClosedByTicker retrieves closed trades for a ticker, newest first.
	FindClosedByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Trade, error)
}

// AuditRepository defines the interface for the append-only audit sink.
// Records are never updated or deleted.
type AuditRepository interface {
	// Append writes one audit record and returns its assigned ID.
	Append(ctx context.Context, rec *domain.AuditRecord) (int64, error)
	// FindByTradeID retrieves all records for a trade ordered by timestamp ascending.
	FindByTradeID(ctx context.Context, tradeID string) ([]*domain.AuditRecord, error)
}
