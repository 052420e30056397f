package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mt5dash/internal/domain"
	"mt5dash/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.DealRepository using SQLite. It mirrors deal
// history fetched from the terminal so analytics keep working when the
// bridge is unreachable and full-history queries do not hammer the terminal.
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
		dbPath = "./data/mt5dash.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
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

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS deals (
		login INTEGER NOT NULL,
		ticket INTEGER NOT NULL,
		position_id INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		time_msc INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		magic INTEGER NOT NULL,
		type TEXT NOT NULL,
		entry TEXT NOT NULL,
		volume REAL NOT NULL,
		price REAL NOT NULL,
		profit REAL NOT NULL,
		commission REAL NOT NULL,
		swap REAL NOT NULL,
		PRIMARY KEY (login, ticket)
	);
	CREATE INDEX IF NOT EXISTS idx_deals_login_time ON deals (login, time_msc);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
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

// UpsertDeals inserts or replaces deals for an account. Deal tickets are
// unique per account, so replays of overlapping ranges are safe.
func (r *Repository) UpsertDeals(ctx context.Context, login int64, deals []domain.Deal) error {
	if len(deals) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	const query = `
	INSERT OR REPLACE INTO deals (login, ticket, position_id, order_id, time_msc, symbol,
	                              magic, type, entry, volume, price, profit, commission, swap)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare deal upsert: %w", ports.ErrQueryFailed, err)
	}
	defer stmt.Close()

	for _, d := range deals {
		if _, err := stmt.ExecContext(ctx,
			login, d.ID, d.PositionID, d.OrderID, d.Time.UnixMilli(), d.Symbol,
			int64(d.Strategy), string(d.Type), string(d.Entry),
			d.Volume, d.Price, d.Profit, d.Commission, d.Swap); err != nil {
			return fmt.Errorf("%w: failed to upsert deal %d for login %d: %w", ports.ErrQueryFailed, d.ID, login, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit deal upsert: %w", ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Deals upserted", map[string]interface{}{"login": login, "count": len(deals)})
	return nil
}

// DealsInRange retrieves cached deals with execution time in [from, to],
// inclusive, ordered by time ascending.
func (r *Repository) DealsInRange(ctx context.Context, login int64, from, to time.Time) ([]domain.Deal, error) {
	const query = `
	SELECT ticket, position_id, order_id, time_msc, symbol, magic, type, entry,
	       volume, price, profit, commission, swap
	FROM deals
	WHERE login = ? AND time_msc >= ? AND time_msc <= ?
	ORDER BY time_msc ASC, ticket ASC`

	rows, err := r.db.QueryContext(ctx, query, login, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query deals for login %d: %w", ports.ErrQueryFailed, login, err)
	}
	defer rows.Close()

	deals := make([]domain.Deal, 0)
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan deal row: %w", ports.ErrQueryFailed, err)
		}
		deals = append(deals, deal)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating deal rows: %w", ports.ErrQueryFailed, err)
	}
	return deals, nil
}

// FirstDealTime returns the earliest cached deal time for an account.
func (r *Repository) FirstDealTime(ctx context.Context, login int64) (time.Time, error) {
	const query = `SELECT MIN(time_msc) FROM deals WHERE login = ?`

	var timeMsc sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, login).Scan(&timeMsc)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: failed to query first deal time for login %d: %w", ports.ErrQueryFailed, login, err)
	}
	if !timeMsc.Valid {
		return time.Time{}, fmt.Errorf("no cached deals for login %d: %w", login, ports.ErrNoHistory)
	}
	return time.UnixMilli(timeMsc.Int64).UTC(), nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDeal(s scanner) (domain.Deal, error) {
	var d domain.Deal
	var timeMsc, magic int64
	var dealType, entry string
	err := s.Scan(
		&d.ID, &d.PositionID, &d.OrderID, &timeMsc, &d.Symbol, &magic, &dealType, &entry,
		&d.Volume, &d.Price, &d.Profit, &d.Commission, &d.Swap)
	if err != nil {
		return domain.Deal{}, err
	}
	d.Time = time.UnixMilli(timeMsc).UTC()
	d.Strategy = domain.StrategyTag(magic)
	d.Type = domain.DealType(dealType)
	d.Entry = domain.DealEntry(entry)
	return d, nil
}

var _ ports.DealRepository = (*Repository)(nil)
