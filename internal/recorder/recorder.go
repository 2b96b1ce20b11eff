// Package recorder streams market observations (price ticks, contract
// offers) into Postgres/Timescale for later analysis. It is optional
// and strictly write-behind: the rendering path never waits on it.
// Trade history is not recorded.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"boxhit-client/internal/config"
	"boxhit-client/internal/protocol"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	queueSize    = 512
)

type Writer struct {
	db     *sql.DB
	log    *zap.Logger
	schema string

	ticks     chan tickRow
	contracts chan protocol.Contract

	started       atomic.Bool
	dropTicks     atomic.Uint64
	dropContracts atomic.Uint64
}

type tickRow struct {
	timeframe int64
	point     protocol.PricePoint
}

// New returns nil when the recorder is disabled; a nil *Writer is safe
// to use.
func New(cfg config.RecorderConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("recorder dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	w := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		ticks:     make(chan tickRow, queueSize),
		contracts: make(chan protocol.Contract, queueSize),
	}
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTick(timeframe int64, point protocol.PricePoint) {
	if w == nil {
		return
	}
	select {
	case w.ticks <- tickRow{timeframe: timeframe, point: point}:
	default:
		if w.dropTicks.Add(1) == 1 && w.log != nil {
			w.log.Warn("recorder tick queue full")
		}
	}
}

func (w *Writer) EnqueueContract(contract protocol.Contract) {
	if w == nil {
		return
	}
	select {
	case w.contracts <- contract:
	default:
		if w.dropContracts.Add(1) == 1 && w.log != nil {
			w.log.Warn("recorder contract queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.ticks:
			w.writeTick(ctx, row)
		case contract := <-w.contracts:
			w.writeContract(ctx, contract)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("recorder db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		timeframe_ms BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, timeframe_ms)
	)`, w.table("price_ticks"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		contract_id TEXT PRIMARY KEY,
		start_ts TIMESTAMPTZ NOT NULL,
		end_ts TIMESTAMPTZ NOT NULL,
		lower_strike DOUBLE PRECISION NOT NULL,
		upper_strike DOUBLE PRECISION NOT NULL,
		return_multiplier DOUBLE PRECISION NOT NULL,
		total_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	)`, w.table("contracts"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeTick(ctx context.Context, row tickRow) {
	query := fmt.Sprintf(`INSERT INTO %s (ts, timeframe_ms, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (ts, timeframe_ms) DO NOTHING`, w.table("price_ticks"))
	w.execWrite(ctx, query,
		time.UnixMilli(row.point.Timestamp).UTC(), row.timeframe, row.point.Price)
}

func (w *Writer) writeContract(ctx context.Context, c protocol.Contract) {
	query := fmt.Sprintf(`INSERT INTO %s
		(contract_id, start_ts, end_ts, lower_strike, upper_strike, return_multiplier, total_volume, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (contract_id) DO UPDATE SET
			total_volume = excluded.total_volume,
			status = excluded.status`, w.table("contracts"))
	w.execWrite(ctx, query,
		c.ContractID, time.UnixMilli(c.StartTime).UTC(), time.UnixMilli(c.EndTime).UTC(),
		c.LowerStrike, c.UpperStrike, c.ReturnMultiplier, c.TotalVolume, c.Status)
}

func (w *Writer) execWrite(ctx context.Context, query string, args ...any) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(writeCtx, query, args...); err != nil && w.log != nil {
		w.log.Warn("recorder write failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
