// Package sqlite journals the signal lifecycle: one row per signal,
// inserted on open and finalized on close, plus session stats snapshots.
// Single writer, WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
)

// JournalConfig configures the SQLite journal.
type JournalConfig struct {
	DBPath string // e.g. "data/signals.db"
}

// Journal persists signals and session stats.
type Journal struct {
	db      *sql.DB
	metrics *metrics.Metrics // optional
}

// SetMetrics wires commit latency observation.
func (j *Journal) SetMetrics(m *metrics.Metrics) { j.metrics = m }

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens the journal database with WAL mode and initializes the schema.
func New(cfg JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened journal at %s", cfg.DBPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			signal_id    TEXT    PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			timeframe    TEXT    NOT NULL,
			type         TEXT    NOT NULL,
			entry        REAL    NOT NULL,
			stop_loss    REAL    NOT NULL,
			take_profit  REAL    NOT NULL,
			pips_target  REAL    NOT NULL,
			trade_style  TEXT    NOT NULL,
			session      TEXT    NOT NULL,
			confidence   REAL    NOT NULL,
			synthetic    INTEGER NOT NULL DEFAULT 0,
			status       TEXT    NOT NULL,
			exit_reason  TEXT,
			exit_price   REAL,
			pips_gained  REAL,
			created_at   INTEGER NOT NULL,
			expires_at   INTEGER NOT NULL,
			closed_at    INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals (symbol, status);

		CREATE TABLE IF NOT EXISTS session_stats (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			total_pips     REAL    NOT NULL,
			winning_trades INTEGER NOT NULL,
			losing_trades  INTEGER NOT NULL,
			total_trades   INTEGER NOT NULL,
			win_rate       REAL    NOT NULL,
			updated_at     INTEGER NOT NULL
		);
	`)
	return err
}

// Run consumes lifecycle events and journals them.
// Blocks until ctx is cancelled or eventCh is closed.
func (j *Journal) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			j.apply(ev)
		}
	}
}

func (j *Journal) apply(ev model.Event) {
	start := time.Now()
	var err error
	switch ev.Type {
	case model.EventSignalOpened:
		if ev.Signal != nil {
			err = j.InsertSignal(ev.Signal)
		}
	case model.EventSignalClosed:
		err = j.CloseSignal(ev.SignalID, ev.ExitReason, ev.ExitPrice, ev.PipsGained, ev.Timestamp)
	case model.EventSessionUpdate:
		if ev.Stats != nil {
			err = j.UpsertSessionStats(*ev.Stats, ev.Timestamp)
		}
	}
	if err != nil {
		log.Printf("[sqlite] journal %s event: %v", ev.Type, err)
		return
	}
	if j.metrics != nil {
		j.metrics.SQLiteCommitDur.Observe(time.Since(start).Seconds())
	}
}

// InsertSignal records a newly opened signal.
func (j *Journal) InsertSignal(sig *model.Signal) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO signals
			(signal_id, symbol, timeframe, type, entry, stop_loss, take_profit,
			 pips_target, trade_style, session, confidence, synthetic, status,
			 created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sig.ID, sig.Symbol, string(sig.Timeframe), string(sig.Type),
		sig.Entry, sig.StopLoss, sig.TakeProfit,
		sig.PipsTarget, string(sig.Style), sig.Session, sig.Confidence,
		boolToInt(sig.Synthetic), string(sig.Status),
		sig.CreatedAt.Unix(), sig.ExpiresAt.Unix(),
	)
	return err
}

// CloseSignal finalizes a signal row with its exit outcome.
func (j *Journal) CloseSignal(id string, reason model.ExitReason, exitPrice, pips float64, closedAt time.Time) error {
	_, err := j.db.Exec(`
		UPDATE signals
		SET status = ?, exit_reason = ?, exit_price = ?, pips_gained = ?, closed_at = ?
		WHERE signal_id = ?
	`, string(model.SignalClosed), string(reason), exitPrice, pips, closedAt.Unix(), id)
	return err
}

// UpsertSessionStats overwrites the single session stats row.
func (j *Journal) UpsertSessionStats(stats model.SessionStats, at time.Time) error {
	_, err := j.db.Exec(`
		INSERT INTO session_stats (id, total_pips, winning_trades, losing_trades, total_trades, win_rate, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_pips = excluded.total_pips,
			winning_trades = excluded.winning_trades,
			losing_trades = excluded.losing_trades,
			total_trades = excluded.total_trades,
			win_rate = excluded.win_rate,
			updated_at = excluded.updated_at
	`, stats.TotalPips, stats.WinningTrades, stats.LosingTrades, stats.TotalTrades, stats.WinRate, at.Unix())
	return err
}

// ClosedSignals returns the most recent closed signals, newest first.
func (j *Journal) ClosedSignals(limit int) ([]*model.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT signal_id, symbol, timeframe, type, entry, stop_loss, take_profit,
		       pips_target, trade_style, session, confidence, synthetic, status,
		       exit_reason, exit_price, pips_gained, created_at, expires_at, closed_at
		FROM signals
		WHERE status = ?
		ORDER BY closed_at DESC
		LIMIT ?
	`, string(model.SignalClosed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Signal
	for rows.Next() {
		var (
			sig                model.Signal
			tf, typ, style, st string
			synthetic          int
			reason             sql.NullString
			exitPrice, pips    sql.NullFloat64
			created, expires   int64
			closedAt           sql.NullInt64
		)
		if err := rows.Scan(
			&sig.ID, &sig.Symbol, &tf, &typ, &sig.Entry, &sig.StopLoss, &sig.TakeProfit,
			&sig.PipsTarget, &style, &sig.Session, &sig.Confidence, &synthetic, &st,
			&reason, &exitPrice, &pips, &created, &expires, &closedAt,
		); err != nil {
			return nil, err
		}
		sig.Timeframe = model.Timeframe(tf)
		sig.Type = model.FVGType(typ)
		sig.Style = model.TradeStyle(style)
		sig.Status = model.SignalStatus(st)
		sig.Synthetic = synthetic != 0
		if reason.Valid {
			sig.ExitReason = model.ExitReason(reason.String)
		}
		sig.ExitPrice = exitPrice.Float64
		sig.PipsGained = pips.Float64
		sig.CreatedAt = time.Unix(created, 0).UTC()
		sig.ExpiresAt = time.Unix(expires, 0).UTC()
		if closedAt.Valid {
			t := time.Unix(closedAt.Int64, 0).UTC()
			sig.ClosedAt = &t
		}
		out = append(out, &sig)
	}
	return out, rows.Err()
}

// SessionStats reads the persisted session stats snapshot.
func (j *Journal) SessionStats() (model.SessionStats, error) {
	var stats model.SessionStats
	err := j.db.QueryRow(`
		SELECT total_pips, winning_trades, losing_trades, total_trades, win_rate
		FROM session_stats WHERE id = 1
	`).Scan(&stats.TotalPips, &stats.WinningTrades, &stats.LosingTrades, &stats.TotalTrades, &stats.WinRate)
	if err == sql.ErrNoRows {
		return model.SessionStats{}, nil
	}
	return stats, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
