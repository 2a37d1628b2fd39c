package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"krakenTrailBot/internal/domain"
	"krakenTrailBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// persistedDecimals is the fixed rounding applied to every numeric cell.
const persistedDecimals = 10

// Ledger implements ports.LedgerStore using SQLite.
//
// The persisted layout mirrors the original spreadsheet columns: numerics are
// stored as decimal text rounded to 10 places, Armed as the literal strings
// "TRUE"/"FALSE", and a blank cell denotes an absent CostBasis/RealizedPct.
// All string encoding and decoding lives here; the rest of the codebase works
// with proper boolean and optional-numeric types. The AUTOINCREMENT id is the
// stable row index assigned at first insertion and preserved across updates.
// There is no locking or row versioning: the ledger assumes a single writer.
type Ledger struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite ledger store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewLedger creates a new SQLite ledger store instance.
func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite ledger")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trailbot.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite ledger connection established", map[string]interface{}{"path": dbPath})

	store := &Ledger{db: db, logger: cfg.Logger}
	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize ledger schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite ledger initialization failed")
		return nil, err
	}
	return store, nil
}

func (l *Ledger) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset TEXT NOT NULL UNIQUE,
		kraken_asset_code TEXT NOT NULL DEFAULT '',
		pair TEXT NOT NULL DEFAULT '',
		position_size TEXT NOT NULL DEFAULT '0',
		cost_basis TEXT NOT NULL DEFAULT '',
		current_price TEXT NOT NULL DEFAULT '0',
		unrealized_pct TEXT NOT NULL DEFAULT '0',
		ath_unrealized_pct TEXT NOT NULL DEFAULT '0',
		armed TEXT NOT NULL DEFAULT 'FALSE',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		realized_pct TEXT NOT NULL DEFAULT '',
		last_updated TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_status ON ledger (status);
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		l.logger.Info(context.Background(), "Closing SQLite ledger connection")
		return l.db.Close()
	}
	return nil
}

// ReadAll retrieves every record in insertion order.
func (l *Ledger) ReadAll(ctx context.Context) ([]*domain.PositionRecord, error) {
	const query = `
	SELECT id, asset, kraken_asset_code, pair, position_size, cost_basis, current_price,
	       unrealized_pct, ath_unrealized_pct, armed, status, realized_pct, last_updated
	FROM ledger
	ORDER BY id ASC`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]*domain.PositionRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return records, nil
}

// Upsert creates a new row for an unseen asset or updates the existing row in
// place, preserving its id. On create the record's RowID is assigned.
func (l *Ledger) Upsert(ctx context.Context, rec *domain.PositionRecord) error {
	var rowID int64
	err := l.db.QueryRowContext(ctx, `SELECT id FROM ledger WHERE asset = ?`, rec.Asset).Scan(&rowID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return l.insert(ctx, rec)
	case err != nil:
		return fmt.Errorf("failed to look up ledger row for %s: %w: %w", rec.Asset, ports.ErrQueryFailed, err)
	}
	rec.RowID = rowID
	return l.update(ctx, rec)
}

func (l *Ledger) insert(ctx context.Context, rec *domain.PositionRecord) error {
	const query = `
	INSERT INTO ledger (asset, kraken_asset_code, pair, position_size, cost_basis, current_price,
	                    unrealized_pct, ath_unrealized_pct, armed, status, realized_pct, last_updated)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := l.db.ExecContext(ctx, query,
		rec.Asset, rec.AssetCode, rec.Pair,
		encodeFloat(rec.PositionSize), encodeOptFloat(rec.CostBasis), encodeFloat(rec.CurrentPrice),
		encodeFloat(rec.UnrealizedPct), encodeFloat(rec.ATHUnrealizedPct),
		encodeBool(rec.Armed), string(rec.Status), encodeOptFloat(rec.RealizedPct), rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to insert ledger row for %s: %w: %w", rec.Asset, ports.ErrUpdateFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get row index for %s: %w", rec.Asset, err)
	}
	rec.RowID = id
	l.logger.Debug(ctx, "Ledger row created", map[string]interface{}{"rowID": id, "asset": rec.Asset})
	return nil
}

func (l *Ledger) update(ctx context.Context, rec *domain.PositionRecord) error {
	const query = `
	UPDATE ledger
	SET kraken_asset_code = ?, pair = ?, position_size = ?, cost_basis = ?, current_price = ?,
	    unrealized_pct = ?, ath_unrealized_pct = ?, armed = ?, status = ?, realized_pct = ?, last_updated = ?
	WHERE id = ?`

	result, err := l.db.ExecContext(ctx, query,
		rec.AssetCode, rec.Pair,
		encodeFloat(rec.PositionSize), encodeOptFloat(rec.CostBasis), encodeFloat(rec.CurrentPrice),
		encodeFloat(rec.UnrealizedPct), encodeFloat(rec.ATHUnrealizedPct),
		encodeBool(rec.Armed), string(rec.Status), encodeOptFloat(rec.RealizedPct), rec.LastUpdated,
		rec.RowID)
	if err != nil {
		return fmt.Errorf("failed to update ledger row %d: %w: %w", rec.RowID, ports.ErrUpdateFailed, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for ledger row %d: %w", rec.RowID, err)
	}
	if affected == 0 {
		return fmt.Errorf("ledger row %d not found for update: %w", rec.RowID, ports.ErrNotFound)
	}
	l.logger.Debug(ctx, "Ledger row updated", map[string]interface{}{"rowID": rec.RowID, "asset": rec.Asset, "status": rec.Status})
	return nil
}

// --- Cell encoding helpers ---

func encodeFloat(v float64) string {
	return decimal.NewFromFloat(v).Round(persistedDecimals).String()
}

func encodeOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return encodeFloat(*v)
}

func encodeBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func decodeFloat(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func decodeOptFloat(s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := decodeFloat(s)
	if err != nil {
		return nil, err
	}
	return domain.Float(v), nil
}

func decodeBool(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRUE", "1", "YES":
		return true
	}
	return false
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a domain.PositionRecord, decoding the cell
// string encodings back into proper types.
func scanRecord(s scanner) (*domain.PositionRecord, error) {
	rec := &domain.PositionRecord{}
	var positionSize, costBasis, currentPrice, unrealizedPct, athPct, armed, status, realizedPct string
	err := s.Scan(
		&rec.RowID, &rec.Asset, &rec.AssetCode, &rec.Pair,
		&positionSize, &costBasis, &currentPrice, &unrealizedPct, &athPct,
		&armed, &status, &realizedPct, &rec.LastUpdated)
	if err != nil {
		return nil, err
	}
	if rec.PositionSize, err = decodeFloat(positionSize); err != nil {
		return nil, fmt.Errorf("bad position_size for %s: %w", rec.Asset, err)
	}
	if rec.CostBasis, err = decodeOptFloat(costBasis); err != nil {
		return nil, fmt.Errorf("bad cost_basis for %s: %w", rec.Asset, err)
	}
	if rec.CurrentPrice, err = decodeFloat(currentPrice); err != nil {
		return nil, fmt.Errorf("bad current_price for %s: %w", rec.Asset, err)
	}
	if rec.UnrealizedPct, err = decodeFloat(unrealizedPct); err != nil {
		return nil, fmt.Errorf("bad unrealized_pct for %s: %w", rec.Asset, err)
	}
	if rec.ATHUnrealizedPct, err = decodeFloat(athPct); err != nil {
		return nil, fmt.Errorf("bad ath_unrealized_pct for %s: %w", rec.Asset, err)
	}
	if rec.RealizedPct, err = decodeOptFloat(realizedPct); err != nil {
		return nil, fmt.Errorf("bad realized_pct for %s: %w", rec.Asset, err)
	}
	rec.Armed = decodeBool(armed)
	rec.Status = domain.PositionStatus(status)
	return rec, nil
}
