package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// Repository implements the ports.TradeRepository and ports.AuditRepository
// interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_tracker.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %v", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w: %v", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist. The partial unique
// index on open trades is what enforces the one-open-trade-per-ticker
// invariant at the storage layer.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		timeframe TEXT NOT NULL DEFAULT '',
		source_analysis_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entry_price REAL NOT NULL,
		target_price REAL DEFAULT NULL,
		stop_loss REAL DEFAULT NULL,
		entry_strategy TEXT NOT NULL,
		entry_condition TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		trigger_time TIMESTAMP DEFAULT NULL,
		trigger_price REAL DEFAULT NULL,
		current_price REAL DEFAULT NULL,
		unrealized_pnl REAL DEFAULT NULL,
		max_favorable_price REAL DEFAULT NULL,
		max_adverse_price REAL DEFAULT NULL,
		close_time TIMESTAMP DEFAULT NULL,
		close_price REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL,
		realized_pnl REAL DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		payload TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_trades_ticker_status ON trades (ticker, status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_one_open_per_ticker
		ON trades (ticker) WHERE status IN ('WAITING', 'ACTIVE');
	CREATE INDEX IF NOT EXISTS idx_trade_audit_trade_id_timestamp ON trade_audit (trade_id, timestamp);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

// Create saves a new trade. A unique-index violation on the open-trade index
// is surfaced as ports.ErrOpenTradeExists.
func (r *Repository) Create(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, ticker, timeframe, source_analysis_id, action, entry_price,
	                    target_price, stop_loss, entry_strategy, entry_condition, status,
	                    trigger_time, trigger_price, current_price, unrealized_pnl,
	                    max_favorable_price, max_adverse_price, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var unrealized sql.NullFloat64
	if trade.Status == domain.StatusActive {
		unrealized = sql.NullFloat64{Float64: trade.UnrealizedPnL, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.Ticker, trade.Timeframe, trade.SourceAnalysisID, trade.Action, trade.EntryPrice,
		nullFloat(trade.TargetPrice), nullFloat(trade.StopLoss), trade.EntryStrategy, trade.EntryCondition, trade.Status,
		nullTime(trade.TriggerTime), nullFloat(trade.TriggerPrice), nullFloat(trade.CurrentPrice), unrealized,
		nullFloat(trade.MaxFavorablePrice), nullFloat(trade.MaxAdversePrice), trade.CreatedAt, trade.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticker %s: %w", trade.Ticker, ports.ErrOpenTradeExists)
		}
		return fmt.Errorf("failed to insert trade for ticker %s: %w: %v", trade.Ticker, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": trade.ID, "ticker": trade.Ticker, "status": trade.Status})
	return nil
}

// Update modifies an existing trade based on its ID.
func (r *Repository) Update(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET status = ?, trigger_time = ?, trigger_price = ?, current_price = ?,
	    unrealized_pnl = ?, max_favorable_price = ?, max_adverse_price = ?,
	    close_time = ?, close_price = ?, close_reason = ?, realized_pnl = ?,
	    updated_at = ?
	WHERE id = ?`

	var closeReason sql.NullString
	var realizedPnL sql.NullFloat64
	if trade.Status == domain.StatusClosed {
		closeReason = sql.NullString{String: trade.CloseReason, Valid: true}
		realizedPnL = sql.NullFloat64{Float64: trade.RealizedPnL, Valid: true}
	}
	var unrealized sql.NullFloat64
	if !trade.TriggerTime.IsZero() {
		unrealized = sql.NullFloat64{Float64: trade.UnrealizedPnL, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.Status, nullTime(trade.TriggerTime), nullFloat(trade.TriggerPrice), nullFloat(trade.CurrentPrice),
		unrealized, nullFloat(trade.MaxFavorablePrice), nullFloat(trade.MaxAdversePrice),
		nullTime(trade.CloseTime), nullFloat(trade.ClosePrice), closeReason, realizedPnL,
		trade.UpdatedAt,
		trade.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade %s: %w: %v", trade.ID, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update of trade %s: %w", trade.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": trade.ID, "ticker": trade.Ticker, "status": trade.Status})
	return nil
}

const tradeColumns = `
	id, ticker, timeframe, source_analysis_id, action, entry_price,
	COALESCE(target_price, 0), COALESCE(stop_loss, 0), entry_strategy, entry_condition, status,
	trigger_time, COALESCE(trigger_price, 0), COALESCE(current_price, 0), COALESCE(unrealized_pnl, 0),
	COALESCE(max_favorable_price, 0), COALESCE(max_adverse_price, 0),
	close_time, COALESCE(close_price, 0), COALESCE(close_reason, ''), COALESCE(realized_pnl, 0),
	created_at, updated_at`

// FindOpenByTicker retrieves the ticker's WAITING or ACTIVE trade, if any.
func (r *Repository) FindOpenByTicker(ctx context.Context, ticker string) (*domain.Trade, error) {
	query := `SELECT` + tradeColumns + `
	FROM trades
	WHERE ticker = ? AND status IN (?, ?)`

	row := r.db.QueryRowContext(ctx, query, ticker, domain.StatusWaiting, domain.StatusActive)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query open trade for ticker %s: %w: %v", ticker, ports.ErrQueryFailed, err)
	}
	return trade, nil
}

// FindByID retrieves a trade by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	query := `SELECT` + tradeColumns + `
	FROM trades
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query trade by ID %s: %w: %v", id, ports.ErrQueryFailed, err)
	}
	return trade, nil
}

// FindByTicker retrieves the most recent trades for a ticker regardless of
// status, newest first.
func (r *Repository) FindByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Trade, error) {
	query := `SELECT` + tradeColumns + `
	FROM trades
	WHERE ticker = ? ORDER BY created_at DESC, id DESC`
	args := []interface{}{ticker}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryTrades(ctx, query, args...)
}

// FindClosedByTicker retrieves closed trades for a ticker, newest first.
func (r *Repository) FindClosedByTicker(ctx context.Context, ticker string, limit int) ([]*domain.Trade, error) {
	query := `SELECT` + tradeColumns + `
	FROM trades
	WHERE ticker = ? AND status = ? ORDER BY close_time DESC`
	args := []interface{}{ticker, domain.StatusClosed}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryTrades(ctx, query, args...)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- AuditRepository Implementation ---

// Append writes one audit record and returns its assigned ID. Records are
// append-only; no update or delete is exposed.
func (r *Repository) Append(ctx context.Context, rec *domain.AuditRecord) (int64, error) {
	const query = `
	INSERT INTO trade_audit (trade_id, event_type, timestamp, payload)
	VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, rec.TradeID, rec.EventType, rec.Timestamp, rec.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit record for trade %s: %w: %v", rec.TradeID, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for audit record (trade %s): %w", rec.TradeID, err)
	}
	rec.ID = id // Update the domain object with the ID
	r.logger.Debug(ctx, "Audit record appended", map[string]interface{}{"auditID": id, "tradeID": rec.TradeID, "event": rec.EventType})
	return id, nil
}

// FindByTradeID retrieves all audit records for a trade, oldest first.
func (r *Repository) FindByTradeID(ctx context.Context, tradeID string) ([]*domain.AuditRecord, error) {
	const query = `
	SELECT id, trade_id, event_type, timestamp, payload
	FROM trade_audit
	WHERE trade_id = ? ORDER BY timestamp ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records for trade %s: %w: %v", tradeID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]*domain.AuditRecord, 0)
	for rows.Next() {
		rec := &domain.AuditRecord{}
		var eventType string
		if err := rows.Scan(&rec.ID, &rec.TradeID, &eventType, &rec.Timestamp, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit record row: %w", err)
		}
		rec.EventType = domain.AuditEventType(eventType)
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit record rows: %w", err)
	}
	return records, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var action, entryStrategy, status string
	var triggerTime, closeTime sql.NullTime
	err := s.Scan(
		&t.ID, &t.Ticker, &t.Timeframe, &t.SourceAnalysisID, &action, &t.EntryPrice,
		&t.TargetPrice, &t.StopLoss, &entryStrategy, &t.EntryCondition, &status,
		&triggerTime, &t.TriggerPrice, &t.CurrentPrice, &t.UnrealizedPnL,
		&t.MaxFavorablePrice, &t.MaxAdversePrice,
		&closeTime, &t.ClosePrice, &t.CloseReason, &t.RealizedPnL,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if triggerTime.Valid {
		t.TriggerTime = triggerTime.Time
	}
	if closeTime.Valid {
		t.CloseTime = closeTime.Time
	}
	t.Action = domain.TradeAction(action)
	t.EntryStrategy = domain.EntryStrategy(entryStrategy)
	t.Status = domain.TradeStatus(status)
	return t, nil
}

// nullFloat maps the domain's "0 means unset" convention onto SQL NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// isUniqueViolation detects the SQLite unique-constraint error raised by the
// open-trade partial index.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
