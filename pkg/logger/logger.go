package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

const TimeFormat = "2006-01-02 15:04:05"

var (
	mu       sync.Mutex
	rotators []*lumberjack.Logger
	stop     chan struct{}
)

// setup 初始化全局 logger：每个等级一个滚动文件，可选控制台输出
func setup(cfg Config) error {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	files := cfg.files()
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return err
		}
	}

	var configured uint16
	for _, f := range files {
		configured |= 1 << uint(parseLevel(f.Level)+1)
	}

	writers := make([]io.Writer, 0, len(files)+1)
	newRotators := make([]*lumberjack.Logger, 0, len(files))
	for _, f := range files {
		lj := &lumberjack.Logger{
			Filename:   f.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		newRotators = append(newRotators, lj)
		writers = append(writers, &levelWriter{
			level:      parseLevel(f.Level),
			configured: configured,
			out:        zerolog.ConsoleWriter{Out: lj, TimeFormat: TimeFormat, NoColor: true},
		})
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: TimeFormat})
	}

	mu.Lock()
	closeRotators()
	rotators = newRotators
	if stop == nil {
		stop = make(chan struct{})
		go rotateDaily(stop)
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Caller().Logger()
	mu.Unlock()

	return nil
}

// levelWriter 只写入本等级；未单独配置文件的等级落到 info，fatal 未配置时落到 error
type levelWriter struct {
	level      zerolog.Level
	configured uint16
	out        io.Writer
}

func (w *levelWriter) Write(p []byte) (int, error) {
	return w.out.Write(p)
}

func (w *levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level == w.level {
		return w.out.Write(p)
	}

	own := w.configured&(1<<uint(level+1)) != 0
	switch {
	case w.level == zerolog.InfoLevel && !own:
		return w.out.Write(p)
	case w.level == zerolog.ErrorLevel && level == zerolog.FatalLevel && !own:
		return w.out.Write(p)
	}
	return len(p), nil
}

// rotateDaily 每天零点切分一次日志文件
func rotateDaily(done <-chan struct{}) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-done:
			timer.Stop()
			return
		case <-timer.C:
			mu.Lock()
			for _, lj := range rotators {
				if err := lj.Rotate(); err != nil {
					log.Logger.Err(err).Str("file", lj.Filename).Msg("rotate log file failed")
				}
			}
			mu.Unlock()
		}
	}
}

func closeRotators() {
	for _, lj := range rotators {
		_ = lj.Close()
	}
	rotators = nil
}

// L 返回全局 logger
func L() zerolog.Logger {
	return log.Logger
}

// With 返回带组件名的子 logger
func With(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func Debug() *zerolog.Event { return log.Logger.Debug() }
func Info() *zerolog.Event  { return log.Logger.Info() }
func Warn() *zerolog.Event  { return log.Logger.Warn() }
func Error() *zerolog.Event { return log.Logger.Error() }
func Fatal() *zerolog.Event { return log.Logger.Fatal() }

// Err 记录错误，err 为 nil 时按 info 级别
func Err(err error) *zerolog.Event {
	return log.Logger.Err(err)
}

func Infof(format string, args ...any) {
	log.Logger.Info().CallerSkipFrame(1).Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	log.Logger.Warn().CallerSkipFrame(1).Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	log.Logger.Error().CallerSkipFrame(1).Msgf(format, args...)
}

// Close 停止日期轮转并关闭文件
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if stop != nil {
		close(stop)
		stop = nil
	}
	closeRotators()
}
