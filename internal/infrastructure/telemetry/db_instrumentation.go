package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBInstrumentationConfig controls database tracing and metrics.
type DBInstrumentationConfig struct {
	Tracing            bool
	Metrics            bool
	LogFullSQL         bool          // include bound variables in spans; development only
	DBSystem           string        // default "postgresql"
	SlowQueryThreshold time.Duration // default 200ms
	PoolStatsInterval  time.Duration // default 15s
}

func (c *DBInstrumentationConfig) applyDefaults() {
	if c.DBSystem == "" {
		c.DBSystem = "postgresql"
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
	if c.PoolStatsInterval <= 0 {
		c.PoolStatsInterval = 15 * time.Second
	}
}

// DBInstrumentation is a gorm plugin that times every statement, flags slow
// queries on the active span and records query and pool metrics.
type DBInstrumentation struct {
	config DBInstrumentationConfig
	logger *zap.Logger

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	poolConns      *Gauge

	sqlDB    *sql.DB
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type dbStartTimeKey struct{}

// NewDBInstrumentation creates the plugin. meter may be nil when metrics are off.
func NewDBInstrumentation(cfg DBInstrumentationConfig, meter metric.Meter, logger *zap.Logger) (*DBInstrumentation, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &DBInstrumentation{config: cfg, logger: logger, stopCh: make(chan struct{})}
	if !cfg.Metrics || meter == nil {
		d.config.Metrics = false
		return d, nil
	}

	var err error
	if d.queryTotal, err = NewCounter(meter, "db_query_total", "Database statements by operation", "{query}"); err != nil {
		return nil, err
	}
	if d.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if d.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the threshold", "{query}"); err != nil {
		return nil, err
	}
	if d.poolConns, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	return d, nil
}

// Name implements gorm.Plugin.
func (d *DBInstrumentation) Name() string {
	return "stockledger:db_instrumentation"
}

// Initialize implements gorm.Plugin. The timing callbacks are registered ahead
// of otelgorm so the after hook still sees a live span.
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	if d.config.Tracing || d.config.Metrics {
		if err := d.registerCallbacks(db); err != nil {
			return err
		}
	}
	if d.config.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(d.config.DBSystem)}
		if !d.config.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	d.logger.Info("Database instrumentation configured",
		zap.Bool("tracing", d.config.Tracing),
		zap.Bool("metrics", d.config.Metrics),
		zap.Duration("slow_query_threshold", d.config.SlowQueryThreshold),
	)
	return nil
}

func (d *DBInstrumentation) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("stockledger:before_"+h.op, d.before); err != nil {
			return err
		}
		op := h.op
		if err := h.after("stockledger:after_"+op, func(tx *gorm.DB) { d.after(tx, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (d *DBInstrumentation) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, dbStartTimeKey{}, time.Now())
	}
}

func (d *DBInstrumentation) after(db *gorm.DB, op string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(dbStartTimeKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	slow := elapsed > d.config.SlowQueryThreshold
	if op == "raw" || op == "row" {
		op = sqlOperation(db.Statement.SQL.String())
	}
	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}

	if d.config.Metrics {
		d.queryTotal.Inc(ctx, AttrDBOperation.String(op))
		d.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(op))
		if slow {
			d.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
		}
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		attribute.String("db.sql.table", table),
	)
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}
	if slow {
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", d.config.SlowQueryThreshold.Milliseconds()),
		))
	}
}

// sqlOperation classifies a raw statement by its leading keyword.
func sqlOperation(stmt string) string {
	stmt = strings.ToUpper(strings.TrimSpace(stmt))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(stmt, op) {
			return strings.ToLower(op)
		}
	}
	return "other"
}

// StartPoolStatsCollection samples sqlDB pool usage until Stop or ctx is done.
func (d *DBInstrumentation) StartPoolStatsCollection(ctx context.Context, sqlDB *sql.DB) {
	if !d.config.Metrics || sqlDB == nil {
		return
	}
	d.sqlDB = sqlDB
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.config.PoolStatsInterval)
		defer ticker.Stop()

		d.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				d.collectPoolStats(ctx)
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *DBInstrumentation) collectPoolStats(ctx context.Context) {
	stats := d.sqlDB.Stats()
	d.poolConns.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	d.poolConns.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	d.poolConns.Record(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}

// Stop ends pool stats collection. Safe to call more than once.
func (d *DBInstrumentation) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
}
