package logging

import (
	"os"

	"github.com/canopy-network/payoutx/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger from LOG_LEVEL / LOG_ENCODING.
// When LOG_FILE is set the same entries are also written to a size-rotated file.
func New() (*zap.Logger, error) {
	level := utils.Env("LOG_LEVEL", "debug")
	encoding := utils.Env("LOG_ENCODING", "json")
	cfg := zap.NewProductionConfig()
	cfg.Encoding = encoding
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	path := utils.Env("LOG_FILE", "")
	if path == "" {
		return l, nil
	}
	return l.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore(cfg, path))
	})), nil
}

// fileCore always encodes JSON, regardless of the console encoding, so rotated files stay machine readable.
func fileCore(cfg zap.Config, path string) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    utils.EnvInt("LOG_FILE_MAX_MB", 100),
		MaxBackups: utils.EnvInt("LOG_FILE_MAX_BACKUPS", 5),
		MaxAge:     utils.EnvInt("LOG_FILE_MAX_AGE_DAYS", 14),
		Compress:   utils.EnvBool("LOG_FILE_COMPRESS", true),
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(writer),
		cfg.Level,
	)
}

// Must is used by the cmd entrypoints; there is nothing useful to do without a logger.
func Must(l *zap.Logger, err error) *zap.Logger {
	if err != nil {
		_, _ = os.Stderr.WriteString("unable to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return l
}
