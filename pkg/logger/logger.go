package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"mindagrowAPI/config"
)

// Logger is the process-wide structured logger. It is a no-op until Init runs.
var Logger = zap.NewNop()

func Init(cfg config.Config) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.LoggerLevel))

	core := zapcore.NewCore(buildEncoder(cfg), buildWriteSyncer(cfg), level)

	Logger = zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("service", cfg.ServiceName))

	Logger.Info("Logger initialized successfully",
		zap.String("level", strings.ToUpper(cfg.LoggerLevel)),
		zap.String("format", cfg.LoggerFormat),
		zap.String("environment", cfg.Environment),
	)
	return Logger
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func buildEncoder(cfg config.Config) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	if cfg.IsDevelopment() || strings.EqualFold(cfg.LoggerFormat, "text") {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// buildWriteSyncer writes to stdout, or to stdout plus a rolling file when a path is configured.
func buildWriteSyncer(cfg config.Config) zapcore.WriteSyncer {
	stdout := zapcore.AddSync(os.Stdout)
	if cfg.LoggerOutputPath == "" || strings.EqualFold(cfg.LoggerOutputPath, "stdout") {
		return stdout
	}

	if dir := filepath.Dir(cfg.LoggerOutputPath); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}

	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LoggerOutputPath,
		MaxSize:    nz(cfg.LogMaxSizeMB, 100),
		MaxBackups: nz(cfg.LogMaxBackups, 3),
		MaxAge:     nz(cfg.LogMaxAgeDays, 7),
		Compress:   cfg.LogCompress,
	})
	return zapcore.NewMultiWriteSyncer(stdout, file)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO", "":
		return zapcore.InfoLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func nz(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
