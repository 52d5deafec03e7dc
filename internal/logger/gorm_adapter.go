package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormAdapter routes GORM output into a module Logger. Statements go to
// TRACE, so they only show up when the history module runs at trace level.
//
//	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
//	    Logger: logger.NewGormAdapter(log.Module("gorm"), 200*time.Millisecond),
//	})
type GormAdapter struct {
	log  Logger
	slow time.Duration
}

// NewGormAdapter returns an adapter that warns on statements slower than
// slow. A zero threshold disables slow statement warnings.
func NewGormAdapter(log Logger, slow time.Duration) *GormAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormAdapter{log: log, slow: slow}
}

// LogMode is a no-op; levels come from the logging config.
func (a *GormAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return a
}

func (a *GormAdapter) Info(_ context.Context, msg string, data ...any) {
	a.log.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.log.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Error(_ context.Context, msg string, data ...any) {
	a.log.Error(fmt.Sprintf(msg, data...))
}

// Trace receives every executed statement.
func (a *GormAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	stmt, rows := fc()

	log := a.log.WithContext(ctx).With(
		String("sql", stmt),
		Int64("rows", rows),
		Duration("elapsed", elapsed))

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Warn("Statement failed", Error(err))
	case a.slow > 0 && elapsed > a.slow:
		log.Warn("Slow statement", Duration("threshold", a.slow))
	default:
		log.Trace("Statement executed")
	}
}

var _ gormlogger.Interface = (*GormAdapter)(nil)
