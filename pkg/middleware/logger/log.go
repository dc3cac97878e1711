package logger

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Dir is where NewLog puts its rotating files (LOG_DIR, default "log").
func Dir() string {
	if d := strings.TrimSpace(os.Getenv("LOG_DIR")); d != "" {
		return d
	}
	return "log"
}

func level() zapcore.Level {
	lvl := zap.InfoLevel
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		_ = lvl.Set(v)
	}
	return lvl
}

// NewLog tees a JSON rotating file under Dir() with stdout. Stdout gets a
// console encoder when it is a terminal.
func NewLog(n string) *zap.Logger {
	dir := Dir()
	_ = os.MkdirAll(dir, 0o755)
	lvl := level()

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, n),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	var consoleEnc zapcore.Encoder
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		dev := zap.NewDevelopmentEncoderConfig()
		dev.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(dev)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, lvl),
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), lvl),
	)
	return zap.New(core, zap.AddCaller()).Named(strings.TrimSuffix(n, filepath.Ext(n)))
}
