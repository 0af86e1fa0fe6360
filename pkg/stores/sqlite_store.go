package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tidysurv/censored/pkg/fit"
	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/registry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	cfg      Config
	registry *registry.Registry
}

// Config holds SQLite store configuration
type Config struct {
	Path string

	// Registry decodes the native part of stored fits. Required by GetFit.
	Registry *registry.Registry

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens its own database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg, registry: cfg.Registry}, nil
}

// Init opens the database connection and enables WAL mode for file databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if s.cfg.Path != memoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveFit stores a fitted model, replacing any fit with the same id.
// Failed fits are stored too so their error stays inspectable.
func (s *SQLiteStore) SaveFit(ctx context.Context, m *model.FittedModel) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("fitted model with an id is required")
	}

	blob, err := fit.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode fit %s: %w", m.ID, err)
	}

	status := StatusOK
	var errMsg *string
	if m.FitErr != nil {
		status = StatusFailed
		msg := m.FitErr.Error()
		errMsg = &msg
	}

	var form string
	if m.Formula != nil {
		form = m.Formula.String()
	}

	query := `
		INSERT INTO fits (id, family, engine, kind, formula, status, error, elapsed_ns, fitted_at, blob, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			family = excluded.family,
			engine = excluded.engine,
			kind = excluded.kind,
			formula = excluded.formula,
			status = excluded.status,
			error = excluded.error,
			elapsed_ns = excluded.elapsed_ns,
			fitted_at = excluded.fitted_at,
			blob = excluded.blob
	`

	_, err = s.db.ExecContext(ctx, query,
		m.ID,
		string(m.Spec.Family),
		string(m.Spec.Engine),
		string(m.Kind),
		form,
		string(status),
		errMsg,
		int64(m.Elapsed),
		m.FittedAt.UTC(),
		blob,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save fit: %w", err)
	}

	return nil
}

// GetFit loads and decodes a fitted model by id.
func (s *SQLiteStore) GetFit(ctx context.Context, id string) (*model.FittedModel, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("store has no engine registry to decode fits")
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM fits WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fit: %w", err)
	}

	m, err := fit.Unmarshal(s.registry, blob)
	if err != nil {
		return nil, fmt.Errorf("failed to restore fit %s: %w", id, err)
	}
	return m, nil
}

// GetFitRecord retrieves the listing view of a fit without decoding it.
func (s *SQLiteStore) GetFitRecord(ctx context.Context, id string) (*FitRecord, error) {
	query := `
		SELECT id, family, engine, kind, formula, status, error, elapsed_ns, fitted_at, created_at
		FROM fits
		WHERE id = ?
	`

	rec, err := scanFitRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fit: %w", err)
	}
	return rec, nil
}

// ListFits lists fits, most recent first.
func (s *SQLiteStore) ListFits(ctx context.Context, limit, offset int) ([]*FitRecord, error) {
	query := `
		SELECT id, family, engine, kind, formula, status, error, elapsed_ns, fitted_at, created_at
		FROM fits
		ORDER BY fitted_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list fits: %w", err)
	}
	defer rows.Close()

	fits := []*FitRecord{}
	for rows.Next() {
		rec, err := scanFitRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fit: %w", err)
		}
		fits = append(fits, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fits: %w", err)
	}

	return fits, nil
}

// DeleteFit removes a fit and its prediction audit entries.
func (s *SQLiteStore) DeleteFit(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("fit %s: %w", id, ErrNotFound)
	}

	return nil
}

// RecordPrediction appends an entry to the prediction audit trail.
func (s *SQLiteStore) RecordPrediction(ctx context.Context, rec *PredictionRecord) error {
	var penalties *string
	if len(rec.Penalties) > 0 {
		b, err := json.Marshal(rec.Penalties)
		if err != nil {
			return fmt.Errorf("failed to encode penalties: %w", err)
		}
		p := string(b)
		penalties = &p
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Status == "" {
		rec.Status = StatusOK
		if rec.Error != nil {
			rec.Status = StatusFailed
		}
	}

	query := `
		INSERT INTO predictions (fit_id, type, row_count, multi, penalties, status, error, elapsed_ns, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.FitID,
		string(rec.Type),
		rec.Rows,
		rec.Multi,
		penalties,
		string(rec.Status),
		rec.Error,
		int64(rec.Elapsed),
		rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record prediction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get prediction id: %w", err)
	}

	rec.ID = id
	return nil
}

// ListPredictions lists the audit trail of one fit, most recent first.
func (s *SQLiteStore) ListPredictions(ctx context.Context, fitID string, limit, offset int) ([]*PredictionRecord, error) {
	query := `
		SELECT id, fit_id, type, row_count, multi, penalties, status, error, elapsed_ns, timestamp
		FROM predictions
		WHERE fit_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, fitID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	recs := []*PredictionRecord{}
	for rows.Next() {
		rec := &PredictionRecord{}
		var typ, status string
		var penalties *string
		var elapsed int64
		err := rows.Scan(
			&rec.ID,
			&rec.FitID,
			&typ,
			&rec.Rows,
			&rec.Multi,
			&penalties,
			&status,
			&rec.Error,
			&elapsed,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		rec.Type = model.PredictionType(typ)
		rec.Status = Status(status)
		rec.Elapsed = time.Duration(elapsed)
		if penalties != nil {
			if err := json.Unmarshal([]byte(*penalties), &rec.Penalties); err != nil {
				return nil, fmt.Errorf("failed to decode penalties: %w", err)
			}
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}

	return recs, nil
}

// HealthCheck performs a health check on the database
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFitRecord(row rowScanner) (*FitRecord, error) {
	rec := &FitRecord{}
	var family, engine, kind, status string
	var elapsed int64
	err := row.Scan(
		&rec.ID,
		&family,
		&engine,
		&kind,
		&rec.Formula,
		&status,
		&rec.Error,
		&elapsed,
		&rec.FittedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Family = model.Family(family)
	rec.Engine = model.EngineName(engine)
	rec.Kind = model.EngineKind(kind)
	rec.Status = Status(status)
	rec.Elapsed = time.Duration(elapsed)
	return rec, nil
}
