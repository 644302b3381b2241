package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
	"github.com/pipemeter/pipemeter/internal/storage/sqlite/migrations"
)

// LedgerConfig is the configuration for the SQLite ledger.
type LedgerConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *LedgerConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Ledger is a SQLite implementation of storage.Ledger. Appends are single
// INSERTs, SQLite serializes them, and rowid order preserves append order.
type Ledger struct {
	db     *sql.DB
	logger log.Logger
}

// NewLedger creates a new SQLite ledger, running schema migrations if needed.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite ledger initialized at %s", cfg.DBPath)

	return &Ledger{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error { return l.db.Close() }

// DB returns the underlying database connection.
func (l *Ledger) DB() *sql.DB { return l.db }

// Append appends a step record.
func (l *Ledger) Append(ctx context.Context, r model.StepRecord) error {
	query := `
		INSERT INTO step_records (
			id, run_id, name,
			start_time, end_time, duration_seconds,
			peak_memory_bytes, cpu_percent,
			io_read_bytes, io_write_bytes,
			exit_status
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(
		ctx,
		query,
		r.ID,
		r.RunID,
		r.Name,
		r.StartTime.Unix(),
		r.EndTime.Unix(),
		r.DurationSeconds,
		int64(r.PeakMemoryBytes),
		r.CPUPercent,
		int64(r.IOReadBytes),
		int64(r.IOWriteBytes),
		r.ExitStatus,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: step_records.") {
			return fmt.Errorf("record already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert record: %w", err)
	}

	l.logger.Debugf("Appended record for step %s", r.Name)
	return nil
}

// ListRecords returns all records in append order.
func (l *Ledger) ListRecords(ctx context.Context) ([]model.StepRecord, error) {
	query := `
		SELECT
			id, run_id, name,
			start_time, end_time, duration_seconds,
			peak_memory_bytes, cpu_percent,
			io_read_bytes, io_write_bytes,
			exit_status
		FROM step_records
		ORDER BY rowid ASC
	`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query records: %w", err)
	}
	defer rows.Close()

	var records []model.StepRecord
	for rows.Next() {
		record, err := l.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

func (l *Ledger) scanRow(rows *sql.Rows) (model.StepRecord, error) {
	var r model.StepRecord
	var startTime, endTime, peakMem, ioRead, ioWrite int64

	err := rows.Scan(
		&r.ID,
		&r.RunID,
		&r.Name,
		&startTime,
		&endTime,
		&r.DurationSeconds,
		&peakMem,
		&r.CPUPercent,
		&ioRead,
		&ioWrite,
		&r.ExitStatus,
	)
	if err != nil {
		return model.StepRecord{}, err
	}

	r.StartTime = timeFromUnix(startTime)
	r.EndTime = timeFromUnix(endTime)
	r.PeakMemoryBytes = uint64(peakMem)
	r.IOReadBytes = uint64(ioRead)
	r.IOWriteBytes = uint64(ioWrite)

	return r, nil
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }
