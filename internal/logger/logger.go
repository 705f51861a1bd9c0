package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志系统的构建参数
type Options struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 控制台编码器并输出错误堆栈
	LogFile     string // 日志文件路径，留空只输出到标准输出
	MaxSizeMB   int    // 单个日志文件的最大体积（MB）
	MaxBackups  int    // 保留的轮转文件数量
	MaxAgeDays  int    // 轮转文件的最长保留天数
	Compress    bool   // 是否压缩轮转文件
}

// New 按给定参数创建 zap 日志记录器
//
// 生产模式输出 JSON 结构化日志，开发模式输出控制台格式。
// 配置了 LogFile 时通过 lumberjack 做轮转，并同时写标准输出。
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if opts.Development {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	if opts.LogFile != "" {
		// 确保日志目录存在
		logDir := filepath.Dir(opts.LogFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}

		rotator := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}

		// 同时输出到文件和控制台
		writeSyncer = zapcore.NewMultiWriteSyncer(
			zapcore.AddSync(rotator),
			zapcore.AddSync(os.Stdout),
		)
	} else {
		writeSyncer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	if opts.Development {
		return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
	}
	return zap.New(core, zap.AddCaller()), nil
}

// NewDevelopment 创建开发环境日志记录器
func NewDevelopment() *zap.Logger {
	logger, err := New(Options{Level: "debug", Development: true})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewProduction 创建生产环境日志记录器，带文件轮转
func NewProduction(logFile string) *zap.Logger {
	logger, err := New(Options{
		Level:      "info",
		LogFile:    logFile,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
