package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), logs
}

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)
	warn, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, warn.logLevel)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-5")
	stmt := `SELECT * FROM stock_lots WHERE product_id = 'pork-belly'`

	t.Run("error", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn)
		gl.Trace(ctx, time.Now(), sqlFn(stmt, 0), errors.New("deadlock"))
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "SQL Error", entry.Message)
		assert.Equal(t, "req-5", entry.ContextMap()["request_id"])
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn)
		gl.Trace(ctx, time.Now(), sqlFn(stmt, 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, logs.Len())

		gl, logs = newObservedGormLogger(gormlogger.Warn, WithIgnoreRecordNotFoundError(false))
		gl.Trace(ctx, time.Now(), sqlFn(stmt, 0), gormlogger.ErrRecordNotFound)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("slow", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		gl.Trace(ctx, time.Now().Add(-time.Second), sqlFn(stmt, 3), nil)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
		assert.Contains(t, logs.All()[0].Message, "SLOW SQL")
	})

	t.Run("info logs every statement at debug", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Info)
		gl.Trace(ctx, time.Now(), sqlFn(stmt, 1), nil)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
		assert.Equal(t, int64(1), logs.All()[0].ContextMap()["rows"])
		assert.Equal(t, "stock_lots", logs.All()[0].ContextMap()["table"])
		assert.NotContains(t, logs.All()[0].ContextMap(), "row_lock")
	})

	t.Run("locking read is tagged", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Info)
		locking := `SELECT * FROM "product_inventories" WHERE product_id = $1 LIMIT 1 FOR UPDATE`
		gl.Trace(ctx, time.Now(), sqlFn(locking, 1), nil)
		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, true, fields["row_lock"])
		assert.Equal(t, "product_inventories", fields["table"])
	})

	t.Run("silent", func(t *testing.T) {
		gl, logs := newObservedGormLogger(gormlogger.Silent)
		gl.Trace(ctx, time.Now(), sqlFn(stmt, 1), errors.New("boom"))
		assert.Zero(t, logs.Len())
	})
}

func TestGormLogger_Printf(t *testing.T) {
	gl, logs := newObservedGormLogger(gormlogger.Warn)
	ctx := context.Background()
	gl.Info(ctx, "migrated %d tables", 3)
	gl.Warn(ctx, "slow pool %s", "ledger")
	gl.Error(ctx, "failed %s", "insert")

	require.Equal(t, 2, logs.Len(), "info is below the warn level")
	assert.Equal(t, "slow pool ledger", logs.All()[0].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("ERROR"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
