package logger

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
	FATAL = "fatal"
)

// parseLevel 解析等级名称，未知等级按 info 处理
func parseLevel(name string) zerolog.Level {
	switch strings.ToLower(name) {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// LevelFile 单个等级对应的日志文件
type LevelFile struct {
	Level string
	Path  string
}

// Config 日志配置
type Config struct {
	Service    string      // 服务名，用于默认日志目录 logs/<service>/
	Files      []LevelFile // 分等级文件，为空时按 Service 生成 err/info 两个文件
	Level      string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	Console    bool
}

// files 返回生效的分等级文件列表
func (c Config) files() []LevelFile {
	if len(c.Files) > 0 {
		return c.Files
	}

	dir := "logs"
	if c.Service != "" {
		dir = filepath.Join(dir, c.Service)
	}
	return []LevelFile{
		{Level: ERROR, Path: filepath.Join(dir, "err.log")},
		{Level: INFO, Path: filepath.Join(dir, "info.log")},
	}
}

// Builder 日志构建器
type Builder struct {
	cfg Config
}

func NewBuilder() *Builder {
	return &Builder{cfg: Config{
		Level:      INFO,
		MaxSize:    10,
		MaxBackups: 60,
		MaxAge:     7,
	}}
}

func (b *Builder) SetService(name string) *Builder {
	b.cfg.Service = name
	return b
}

func (b *Builder) SetLevel(level string) *Builder {
	b.cfg.Level = level
	return b
}

func (b *Builder) SetMaxSize(mb int) *Builder {
	b.cfg.MaxSize = mb
	return b
}

func (b *Builder) SetMaxBackups(n int) *Builder {
	b.cfg.MaxBackups = n
	return b
}

func (b *Builder) SetMaxAge(days int) *Builder {
	b.cfg.MaxAge = days
	return b
}

func (b *Builder) EnableCompression(enable bool) *Builder {
	b.cfg.Compress = enable
	return b
}

func (b *Builder) EnableConsoleOutput(enable bool) *Builder {
	b.cfg.Console = enable
	return b
}

// AddLevelFile 追加一个等级文件
func (b *Builder) AddLevelFile(level, path string) *Builder {
	b.cfg.Files = append(b.cfg.Files, LevelFile{Level: level, Path: path})
	return b
}

func (b *Builder) Build() error {
	return setup(b.cfg)
}
