package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pipemeter/pipemeter/internal/log"
	"github.com/pipemeter/pipemeter/internal/model"
)

// header is the ledger interchange format: one CSV row per step, header row
// first, timestamps as unix seconds. Downstream report tooling parses this.
var header = []string{
	"name",
	"start_time",
	"end_time",
	"duration_seconds",
	"peak_memory_bytes",
	"cpu_percent",
	"io_read_bytes",
	"io_write_bytes",
	"exit_status",
}

// LedgerConfig is the configuration for the CSV file ledger.
type LedgerConfig struct {
	// Path is the CSV file path. Created (with its directory and a header
	// row) on first append.
	Path   string
	Logger log.Logger
}

func (c *LedgerConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("ledger path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.CSVFile"})
	return nil
}

// Ledger is a CSV file implementation of storage.Ledger. Each append is a
// single O_APPEND write of one encoded row, so concurrent appenders never
// interleave rows; an in-process mutex additionally serializes appends from
// parallel step runners in the same process.
type Ledger struct {
	path   string
	mu     sync.Mutex
	logger log.Logger
}

// NewLedger creates a new CSV file ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Ledger{path: cfg.Path, logger: cfg.Logger}, nil
}

// Append appends a record as a single CSV row, writing the header first if
// the file is new.
func (l *Ledger) Append(ctx context.Context, r model.StepRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("could not create ledger directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("could not open ledger file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("could not stat ledger file: %w", err)
	}

	// Encode into a buffer first so the row hits the file in one write.
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("could not encode header: %w", err)
		}
	}
	if err := w.Write(encodeRecord(r)); err != nil {
		return fmt.Errorf("could not encode record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("could not encode record: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("could not append record: %w", err)
	}

	l.logger.Debugf("Appended record for step %s to %s", r.Name, l.path)
	return nil
}

// ListRecords reads all records in append order. A missing file is an empty
// ledger, not an error.
func (l *Ledger) ListRecords(ctx context.Context) ([]model.StepRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not open ledger file: %w", err)
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = len(header)

	// Skip header.
	if _, err := rd.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	var records []model.StepRecord
	for {
		row, err := rd.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("could not read row: %w", err)
		}

		r, err := decodeRecord(row)
		if err != nil {
			return nil, fmt.Errorf("invalid ledger row: %w", err)
		}
		records = append(records, r)
	}

	return records, nil
}

func encodeRecord(r model.StepRecord) []string {
	return []string{
		r.Name,
		strconv.FormatInt(r.StartTime.Unix(), 10),
		strconv.FormatInt(r.EndTime.Unix(), 10),
		strconv.FormatFloat(r.DurationSeconds, 'f', -1, 64),
		strconv.FormatUint(r.PeakMemoryBytes, 10),
		strconv.FormatFloat(r.CPUPercent, 'f', -1, 64),
		strconv.FormatUint(r.IOReadBytes, 10),
		strconv.FormatUint(r.IOWriteBytes, 10),
		strconv.Itoa(r.ExitStatus),
	}
}

func decodeRecord(row []string) (model.StepRecord, error) {
	start, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("end_time: %w", err)
	}
	duration, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("duration_seconds: %w", err)
	}
	peakMem, err := strconv.ParseUint(row[4], 10, 64)
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("peak_memory_bytes: %w", err)
	}
	cpu, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("cpu_percent: %w", err)
	}
	ioRead, err := strconv.ParseUint(row[6], 10, 64)
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("io_read_bytes: %w", err)
	}
	ioWrite, err := strconv.ParseUint(row[7], 10, 64)
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("io_write_bytes: %w", err)
	}
	exitStatus, err := strconv.Atoi(row[8])
	if err != nil {
		return model.StepRecord{}, fmt.Errorf("exit_status: %w", err)
	}

	return model.StepRecord{
		Name:            row[0],
		StartTime:       time.Unix(start, 0).UTC(),
		EndTime:         time.Unix(end, 0).UTC(),
		DurationSeconds: duration,
		PeakMemoryBytes: peakMem,
		CPUPercent:      cpu,
		IOReadBytes:     ioRead,
		IOWriteBytes:    ioWrite,
		ExitStatus:      exitStatus,
	}, nil
}
