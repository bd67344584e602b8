package xlog

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FieldTimestamp = "@timestamp"

	FormatConsole = "console"
	FormatJSON    = "json"
)

var gLogger Logger

func init() {
	gLogger = initLogger(zapcore.DebugLevel, FormatConsole, zapcore.Lock(os.Stdout))
}

// Options 进程级日志配置
type Options struct {
	Level  string // debug|info|warn|error
	Format string // console|json
}

// Init 按配置重建全局logger, 只在启动时调用一次
func Init(opt Options) error {
	lvl, err := ParseLevel(opt.Level)
	if err != nil {
		return err
	}
	format := strings.ToLower(opt.Format)
	switch format {
	case "":
		format = FormatConsole
	case FormatConsole, FormatJSON:
	default:
		return errors.Errorf("log format[%s] invalid", opt.Format)
	}
	gLogger = initLogger(lvl, format, zapcore.Lock(os.Stdout))
	return nil
}

// ParseLevel 空字符串视为info
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, errors.Wrapf(err, "log level[%s] invalid", s)
	}
	return lvl, nil
}

func getEncoder(format string) zapcore.Encoder {
	isJSON := format == FormatJSON
	config := ecsCompatibleEncoder(!isJSON)
	config.TimeKey = FieldTimestamp
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	if isJSON {
		return zapcore.NewJSONEncoder(config)
	}
	return zapcore.NewConsoleEncoder(config)
}

// Elastic Common Schema (ECS) 兼容的encoder格式, 便于日志被ELK归档
func ecsCompatibleEncoder(withColor bool) zapcore.EncoderConfig {
	return ecszap.EncoderConfig{
		EnableName:       true,
		EncodeName:       zapcore.FullNameEncoder,
		EnableStackTrace: true,
		EnableCaller:     true,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      customLevelEncoder(withColor),
		EncodeDuration:   zapcore.StringDurationEncoder,
	}.ToZapCoreEncoderConfig()
}

func defaultOptions() []zap.Option {
	return []zap.Option{
		zap.WithCaller(true),
		// DPanic时自动增加Stacktrace
		zap.AddStacktrace(zap.NewAtomicLevelAt(zap.DPanicLevel)),
	}
}

func initLogger(logLvl zapcore.Level, format string, sink zapcore.WriteSyncer) Logger {
	core := zapcore.NewCore(getEncoder(format), sink, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= logLvl
	}))
	return newLogger(zap.New(core, defaultOptions()...))
}

// Sync 进程退出前刷新缓冲
func Sync() {
	_ = gLogger.Raw().Sync()
}
