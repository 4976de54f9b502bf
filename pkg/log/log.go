// Copyright 2016 ETH Zurich
// Copyright 2020 ETH Zurich, Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides structured key/value logging on top of zap.
//
// Messages are logged with an even number of context arguments that are
// interpreted as key value pairs:
//
//	log.Info("Mapping added", "eid", key, "xtr_id", rec.XtrID)
package log

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lispms/lispms/pkg/private/serrors"
)

// Level is the log level.
type Level zapcore.Level

const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
)

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

var (
	rootMtx sync.RWMutex
	zlog    = zap.NewNop()
)

// Setup configures the root logger according to cfg. It must be called
// before any goroutine logs through the root logger.
func Setup(cfg Config, opts ...Option) error {
	o := applyOptions(opts)
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := ParseLevel(cfg.Console.Level)
	if err != nil {
		return err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	zCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(zapcore.Level(level)),
		Encoding:          cfg.Console.Format,
		EncoderConfig:     encCfg,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		DisableCaller:     cfg.Console.DisableCaller,
	}
	if cfg.Console.Format == "human" {
		zCfg.Encoding = "console"
		zCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logger, err := zCfg.Build(append(o.zapOptions(), zap.AddCallerSkip(1))...)
	if err != nil {
		return serrors.Wrap("creating logger", err)
	}
	rootMtx.Lock()
	defer rootMtx.Unlock()
	zlog = logger
	zap.ReplaceGlobals(logger)
	return nil
}

// ParseLevel parses a textual log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "error", "crit":
		return ErrorLevel, nil
	default:
		return InfoLevel, serrors.New("unknown log level", "level", s)
	}
}

// Flush writes the buffered logs.
func Flush() {
	rootMtx.RLock()
	defer rootMtx.RUnlock()
	_ = zlog.Sync()
}

// HandlePanic catches panics and logs them. It is meant to be deferred at the
// top of every goroutine the service starts.
func HandlePanic() {
	if msg := recover(); msg != nil {
		Root().Error("Panic", "msg", msg, "stack", string(debug.Stack()))
		Flush()
		panic(msg)
	}
}

// Debug logs at debug level.
func Debug(msg string, ctx ...any) {
	root().Debug(msg, convertCtx(ctx)...)
}

// Info logs at info level.
func Info(msg string, ctx ...any) {
	root().Info(msg, convertCtx(ctx)...)
}

// Error logs at error level.
func Error(msg string, ctx ...any) {
	root().Error(msg, convertCtx(ctx)...)
}

// New creates a logger with the given context attached.
func New(ctx ...any) Logger {
	return &logger{logger: root().With(convertCtx(ctx)...)}
}

// Root returns the root logger. It's a logger without any context.
func Root() Logger {
	return &logger{logger: root()}
}

// Discard sets the root logger to discard all entries.
func Discard() {
	rootMtx.Lock()
	defer rootMtx.Unlock()
	zlog = zap.NewNop()
}

func root() *zap.Logger {
	rootMtx.RLock()
	defer rootMtx.RUnlock()
	return zlog
}

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(zapcore.Level(lvl))
}

// FromZap wraps a zap logger. It is mostly useful in tests.
func FromZap(z *zap.Logger) Logger {
	return &logger{logger: z}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprint(ctx[i])
		}
		fields = append(fields, zap.Any(key, ctx[i+1]))
	}
	if len(ctx)%2 == 1 {
		fields = append(fields, zap.Any("LOG_CTX_ERROR", ctx[len(ctx)-1]))
	}
	return fields
}
