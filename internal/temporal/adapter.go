// Package temporal connects the service to a Temporal cluster.
package temporal

import (
	"fmt"
	"reflect"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapLogger routes Temporal SDK logs into zap
type zapLogger struct {
	logger *zap.Logger
}

// NewLogger wraps logger for client.Options.Logger
func NewLogger(logger *zap.Logger) log.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapLogger{logger: logger.Named("temporal")}
}

func (z *zapLogger) Debug(msg string, keyvals ...interface{}) {
	z.logger.Debug(msg, fields(keyvals)...)
}
func (z *zapLogger) Info(msg string, keyvals ...interface{}) { z.logger.Info(msg, fields(keyvals)...) }
func (z *zapLogger) Warn(msg string, keyvals ...interface{}) { z.logger.Warn(msg, fields(keyvals)...) }
func (z *zapLogger) Error(msg string, keyvals ...interface{}) {
	z.logger.Error(msg, fields(keyvals)...)
}

// With implements log.WithLogger
func (z *zapLogger) With(keyvals ...interface{}) log.Logger {
	return &zapLogger{logger: z.logger.With(fields(keyvals)...)}
}

// fields pairs up keyvals. A trailing key without a value is kept as "<missing>".
func fields(keyvals []interface{}) []zap.Field {
	out := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		if i+1 >= len(keyvals) {
			out = append(out, zap.String(key, "<missing>"))
			break
		}
		out = append(out, field(key, keyvals[i+1]))
	}
	return out
}

// field guards zap.Any against values it cannot encode
func field(key string, val interface{}) (f zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			f = zap.String(key, fmt.Sprintf("<unserializable: %v>", r))
		}
	}()
	if val == nil {
		return zap.String(key, "<nil>")
	}
	switch reflect.ValueOf(val).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return zap.String(key, fmt.Sprintf("<%T>", val))
	}
	return zap.Any(key, val)
}
