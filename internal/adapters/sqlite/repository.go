package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.ExperienceRepository using SQLite. The table is
// append-only; rows are never updated or deleted once written.
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
		dbPath = "./data/experiences.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite experience store ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates the experiences table if it doesn't exist. Columns
// added after schema version 1 (recent_pnl, streak, regime) are nullable so
// old databases open unchanged; missing values are defaulted at load time.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS experiences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		schema_version INTEGER NOT NULL,
		side TEXT NOT NULL,
		regime TEXT DEFAULT NULL,
		rsi REAL NOT NULL,
		vwap_distance REAL NOT NULL,
		atr REAL NOT NULL,
		volume_ratio REAL NOT NULL,
		hour INTEGER NOT NULL,
		day_of_week INTEGER NOT NULL,
		recent_pnl REAL DEFAULT NULL,
		streak INTEGER DEFAULT NULL,
		took_trade INTEGER NOT NULL,
		pnl REAL NOT NULL,
		duration_sec INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_experiences_side ON experiences (side);
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

// LoadAll retrieves every persisted experience row in insertion order.
func (r *Repository) LoadAll(ctx context.Context) ([]ports.RawExperience, error) {
	const query = `
	SELECT id, schema_version, side, regime, rsi, vwap_distance, atr, volume_ratio,
	       hour, day_of_week, recent_pnl, streak, took_trade, pnl, duration_sec, recorded_at
	FROM experiences
	ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiences: %w", err)
	}
	defer rows.Close()

	var out []ports.RawExperience
	for rows.Next() {
		var (
			raw       ports.RawExperience
			regime    sql.NullString
			recentPNL sql.NullFloat64
			streak    sql.NullInt64
		)
		if err := rows.Scan(&raw.ID, &raw.SchemaVersion, &raw.Side, &regime,
			&raw.RSI, &raw.VWAPDistance, &raw.ATR, &raw.VolumeRatio,
			&raw.Hour, &raw.DayOfWeek, &recentPNL, &streak,
			&raw.TookTrade, &raw.PNL, &raw.DurationSec, &raw.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan experience row: %w", err)
		}
		if regime.Valid {
			raw.Regime = &regime.String
		}
		if recentPNL.Valid {
			raw.RecentPNL = &recentPNL.Float64
		}
		if streak.Valid {
			s := int(streak.Int64)
			raw.Streak = &s
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating experience rows: %w", err)
	}
	r.logger.Debug(ctx, "Loaded experiences from database", map[string]interface{}{"count": len(out)})
	return out, nil
}

// Append persists one experience record and returns its assigned ID.
func (r *Repository) Append(ctx context.Context, exp *domain.Experience) (int64, error) {
	const query = `
	INSERT INTO experiences (schema_version, side, regime, rsi, vwap_distance, atr, volume_ratio,
	                         hour, day_of_week, recent_pnl, streak, took_trade, pnl, duration_sec, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	st := exp.State
	result, err := r.db.ExecContext(ctx, query,
		domain.ExperienceSchemaVersion, string(st.Side), string(st.Regime),
		st.RSI, st.VWAPDistance, st.ATR, st.VolumeRatio,
		st.Hour, st.DayOfWeek, st.RecentPNL, st.Streak,
		exp.TookTrade, exp.PNL, int64(exp.Duration.Seconds()), exp.RecordedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert experience: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for experience: %w", err)
	}
	r.logger.Debug(ctx, "Experience persisted", map[string]interface{}{
		"id": id, "side": st.Side, "pnl": exp.PNL})
	return id, nil
}

// Count returns the number of persisted experiences.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiences`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count experiences: %w", err)
	}
	return count, nil
}
