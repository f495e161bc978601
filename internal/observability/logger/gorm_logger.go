package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold is where a statement gets logged at warn level.
const SlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm output through zap. Only failed and slow
// statements are logged unless the level is raised to Info. Bound values
// never reach the log.
type GormLogger struct {
	base  *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewGormLogger(base *zap.Logger, debug bool) *GormLogger {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return &GormLogger{
		base:  base.Named("gorm"),
		level: level,
		slow:  SlowQueryThreshold,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.with(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.with(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.with(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	notFound := errors.Is(err, gormlogger.ErrRecordNotFound)
	switch {
	case err != nil && !notFound && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.with(ctx).Error("query failed", append(statementFields(sql, rows, elapsed), zap.Error(err))...)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.with(ctx).Warn("slow query", statementFields(sql, rows, elapsed)...)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.with(ctx).Debug("query", statementFields(sql, rows, elapsed)...)
	}
}

// ParamsFilter drops bound values; password hashes and approval tokens
// travel through them.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) with(ctx context.Context) *zap.Logger {
	return WithContext(ctx, l.base)
}

func statementFields(sql string, rows int64, elapsed time.Duration) []zap.Field {
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("statement", statementKind(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	return fields
}

// statementKind is the first DML keyword of sql, skipping CTE prefixes.
func statementKind(sql string) string {
	for _, word := range strings.Fields(strings.ToUpper(sql)) {
		word = strings.Trim(word, "();")
		switch word {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return strings.ToLower(word)
		}
	}
	return "other"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
