package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/id"
	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// dsn adds the WAL pragmas every connection uses.
func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"

	// OnCommit, when set, observes every committed batch.
	OnCommit func(rows int, d time.Duration)
}

// Writer is a single-connection SQLite writer with transaction batching.
// It archives ticks for replay and appends emitted signals to the signal log.
type Writer struct {
	db       *sql.DB
	onCommit func(rows int, d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, onCommit: cfg.OnCommit}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			instrument TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			price      REAL    NOT NULL,
			high       REAL,
			low        REAL,
			close      REAL,
			PRIMARY KEY (instrument, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id                TEXT    PRIMARY KEY,
			instrument        TEXT    NOT NULL,
			timeframe         TEXT    NOT NULL,
			kind              TEXT    NOT NULL,
			confidence        REAL    NOT NULL,
			reason            TEXT    NOT NULL,
			entry_price       REAL    NOT NULL,
			stop_loss         REAL,
			take_profit       REAL,
			horizon_minutes   INTEGER NOT NULL,
			expected_move_pct REAL    NOT NULL,
			indicators        TEXT    NOT NULL,
			ts                INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_instrument_ts ON signals (instrument, ts);
	`)
	return err
}

// Run reads signals from in and appends them to the signal log in batched
// transactions. Blocks until ctx is cancelled or in is closed.
func (w *Writer) Run(ctx context.Context, in <-chan model.TradingSignal) {
	runBatched(ctx, in, "signals", w.insertSignals, w.onCommit)
}

// RunTicks archives ticks for later replay. Blocks until ctx is cancelled
// or in is closed.
func (w *Writer) RunTicks(ctx context.Context, in <-chan model.Tick) {
	runBatched(ctx, in, "ticks", w.insertTicks, w.onCommit)
}

// runBatched drains in, flushing every defaultBatchSize items OR every
// defaultFlushDelay, whichever first. Pending items are flushed on exit.
func runBatched[T any](ctx context.Context, in <-chan T, what string, insert func([]T) error, onCommit func(int, time.Duration)) {
	batch := make([]T, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := insert(batch); err != nil {
			log.Printf("[sqlite] %s batch insert error: %v", what, err)
		} else if onCommit != nil {
			onCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case v, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, v)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertTicks inserts a batch of ticks in a single transaction.
func (w *Writer) insertTicks(ticks []model.Tick) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO ticks (instrument, ts, price, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		_, err := stmt.Exec(t.Instrument, t.TS.UnixNano(), t.Price, nullIfZero(t.High), nullIfZero(t.Low), nullIfZero(t.Close))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// insertSignals inserts a batch of signals in a single transaction. Row ids
// are ULIDs stamped with the signal's event time.
func (w *Writer) insertSignals(sigs []model.TradingSignal) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO signals (id, instrument, timeframe, kind, confidence, reason, entry_price,
			stop_loss, take_profit, horizon_minutes, expected_move_pct, indicators, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range sigs {
		ind, err := json.Marshal(s.Indicators)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal indicators: %w", err)
		}
		_, err = stmt.Exec(id.At(s.TS), s.Instrument, s.Timeframe, string(s.Kind), s.Confidence, s.Reason,
			s.EntryPrice, s.StopLoss, s.TakeProfit, s.HorizonMinutes, s.ExpectedMovePct, string(ind), s.TS.UnixNano())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTickTime returns the last archived tick time for an instrument.
// Returns the zero time if none exist.
func (w *Writer) GetLastTickTime(instrument string) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(`SELECT MAX(ts) FROM ticks WHERE instrument = ?`, instrument).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, ts.Int64).UTC(), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func nullIfZero(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}
