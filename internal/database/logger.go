package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/alex65536/syllabus/internal/util/style"
	"gorm.io/gorm/logger"
)

// slogLogger forwards gorm messages into slog. Queries slower than the threshold
// are reported as warnings.
type slogLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	slow  time.Duration
}

func Logger(srcLog *slog.Logger, o Options) logger.Interface {
	if o.Debug {
		// In debug mode, use a fancier logger built into gorm itself.
		return logger.New(
			log.New(style.Stdout(), "", log.LstdFlags),
			logger.Config{
				SlowThreshold: o.SlowThreshold,
				LogLevel:      logger.Info,
				Colorful:      style.StdoutSupportsColor(),
			},
		)
	}
	return &slogLogger{
		log:   srcLog,
		level: logger.Warn,
		slow:  o.SlowThreshold,
	}
}

func (l *slogLogger) LogMode(level logger.LogLevel) logger.Interface {
	res := *l
	res.level = level
	return &res
}

func (l *slogLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		l.log.InfoContext(ctx, "gorm info", slog.String("msg", fmt.Sprintf(msg, data...)))
	}
}

func (l *slogLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		l.log.WarnContext(ctx, "gorm warn", slog.String("msg", fmt.Sprintf(msg, data...)))
	}
}

func (l *slogLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		l.log.ErrorContext(ctx, "gorm error", slog.String("msg", fmt.Sprintf(msg, data...)))
	}
}

func (l *slogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound):
		sql, rows := fc()
		l.log.ErrorContext(ctx, "gorm sql error",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", sql),
			slogx.Err(err),
		)
	case l.slow > 0 && elapsed > l.slow:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow sql",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", sql),
		)
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.DebugContext(ctx, "sql",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", sql),
		)
	}
}
