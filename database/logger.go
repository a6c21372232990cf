package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kbukum/outbound/logger"
)

var gormLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

// parseLogLevel maps the config level onto gorm's; unknown means warn.
func parseLogLevel(level string) gormlogger.LogLevel {
	if l, ok := gormLevels[strings.ToLower(level)]; ok {
		return l
	}
	return gormlogger.Warn
}

// queryLogger routes gorm output into the service logger. Cache lookups
// that miss surface as ErrRecordNotFound and are never logged as errors.
type queryLogger struct {
	log   *logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

var _ gormlogger.Interface = (*queryLogger)(nil)

func newQueryLogger(log *logger.Logger, slow time.Duration, level gormlogger.LogLevel) *queryLogger {
	return &queryLogger{log: log.WithComponent("gorm"), level: level, slow: slow}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(_ context.Context, msg string, data ...interface{}) {
	q.emit(gormlogger.Info, "info", fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	q.emit(gormlogger.Warn, "warn", fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Error(_ context.Context, msg string, data ...interface{}) {
	q.emit(gormlogger.Error, "error", fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && elapsed > q.slow

	var min gormlogger.LogLevel
	switch {
	case failed:
		min = gormlogger.Error
	case slow:
		min = gormlogger.Warn
	default:
		min = gormlogger.Info
	}
	if q.level < min {
		return
	}

	sql, rows := fc()
	fields := logger.Fields("sql", sql, "rows", rows, logger.FieldDuration, elapsed.Milliseconds())
	switch {
	case failed:
		fields[logger.FieldError] = err.Error()
		q.log.Error("query failed", fields)
	case slow:
		fields["threshold"] = q.slow.String()
		q.log.Warn("slow query", fields)
	default:
		q.log.Debug("query", fields)
	}
}

func (q *queryLogger) emit(min gormlogger.LogLevel, level, msg string) {
	if q.level >= min {
		q.log.Log(level, msg)
	}
}
