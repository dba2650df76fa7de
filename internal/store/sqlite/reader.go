package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// SignalRecord is one row of the signal log.
type SignalRecord struct {
	ID     string
	Signal model.TradingSignal
}

// Reader provides read-only access to SQLite for replay and signal history.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadTicks reads archived ticks in [from, to], ordered by timestamp then
// instrument for a stable replay order. An empty instrument reads all
// instruments; a zero from or to leaves that side unbounded.
func (r *Reader) ReadTicks(ctx context.Context, instrument string, from, to time.Time) ([]model.Tick, error) {
	lo, hi := bounds(from, to)
	rows, err := r.db.QueryContext(ctx, `
		SELECT instrument, ts, price, high, low, close
		FROM ticks
		WHERE (? = '' OR instrument = ?) AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, instrument ASC
	`, instrument, instrument, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var ts int64
		var high, low, cls sql.NullFloat64
		if err := rows.Scan(&t.Instrument, &ts, &t.Price, &high, &low, &cls); err != nil {
			return nil, fmt.Errorf("sqlite scan ticks: %w", err)
		}
		t.TS = time.Unix(0, ts).UTC()
		t.High, t.Low, t.Close = high.Float64, low.Float64, cls.Float64
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// ReadRecentSignals returns up to limit signals, newest first. An empty
// instrument reads all instruments.
func (r *Reader) ReadRecentSignals(ctx context.Context, instrument string, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instrument, timeframe, kind, confidence, reason, entry_price,
			stop_loss, take_profit, horizon_minutes, expected_move_pct, indicators, ts
		FROM signals
		WHERE (? = '' OR instrument = ?)
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, instrument, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountSignals returns the number of logged signals per kind.
func (r *Reader) CountSignals(ctx context.Context) (map[model.SignalKind]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM signals GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("sqlite count signals: %w", err)
	}
	defer rows.Close()

	out := make(map[model.SignalKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("sqlite scan count: %w", err)
		}
		out[model.SignalKind(kind)] = n
	}
	return out, rows.Err()
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

func scanSignal(rows *sql.Rows) (SignalRecord, error) {
	var rec SignalRecord
	var kind, ind string
	var ts int64
	var stop, target sql.NullFloat64
	s := &rec.Signal

	err := rows.Scan(&rec.ID, &s.Instrument, &s.Timeframe, &kind, &s.Confidence, &s.Reason, &s.EntryPrice,
		&stop, &target, &s.HorizonMinutes, &s.ExpectedMovePct, &ind, &ts)
	if err != nil {
		return rec, fmt.Errorf("sqlite scan signals: %w", err)
	}
	s.Kind = model.SignalKind(kind)
	s.TS = time.Unix(0, ts).UTC()
	if stop.Valid {
		v := stop.Float64
		s.StopLoss = &v
	}
	if target.Valid {
		v := target.Float64
		s.TakeProfit = &v
	}
	if err := json.Unmarshal([]byte(ind), &s.Indicators); err != nil {
		return rec, fmt.Errorf("unmarshal indicators: %w", err)
	}
	return rec, nil
}

func bounds(from, to time.Time) (int64, int64) {
	lo, hi := int64(0), int64(1<<63-1)
	if !from.IsZero() {
		lo = from.UnixNano()
	}
	if !to.IsZero() {
		hi = to.UnixNano()
	}
	return lo, hi
}
