package logger

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 日志选项
// File 非空时同时写入滚动日志文件（lumberjack）
type Options struct {
	Level       string // "debug", "info", "warn", "error" (默认: "info")
	Format      string // "json" 或 "console" (默认: "json")
	ServiceName string
	File        string
	MaxSizeMB   int
	MaxBackups  int
}

// NewLogger 创建新的Logger实例
func NewLogger(level string, format string, serviceName string) (*zap.Logger, error) {
	return NewLoggerWithOptions(Options{Level: level, Format: format, ServiceName: serviceName})
}

// NewLoggerWithOptions 按选项创建 Logger
func NewLoggerWithOptions(opts Options) (*zap.Logger, error) {
	zapLevel := parseLevel(opts.Level)

	var config zap.Config
	if opts.Format == "console" {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// 输出到标准输出（便于Docker和日志收集器捕获）
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	baseLogger, err := config.Build()
	if err != nil {
		return nil, err
	}

	if opts.File != "" {
		baseLogger = baseLogger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, newFileCore(opts, config.EncoderConfig, zapLevel))
		}))
	}

	if opts.ServiceName != "" {
		baseLogger = baseLogger.With(zap.String("service_name", opts.ServiceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		baseLogger = baseLogger.With(zap.String("hostname", hostname))
	}

	return baseLogger, nil
}

// newFileCore 滚动文件输出，固定使用 JSON 编码
func newFileCore(opts Options, encCfg zapcore.EncoderConfig, level zapcore.Level) zapcore.Core {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	writer := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(writer), level)
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
