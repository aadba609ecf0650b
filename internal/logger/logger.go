package logger

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

func Init(level, format string) {
	log = logrus.New()

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	log.SetOutput(os.Stdout)
}

func GetLogger() *logrus.Logger {
	if log == nil {
		Init("info", "json")
	}
	return log
}

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyActor     ctxKey = "performed_by"
)

// WithActor attaches the caller identity for an operation to ctx so that
// WithContext can recover it for structured logging further down the stack.
func WithActor(ctx context.Context, requestID, performedBy string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyRequestID, requestID)
	ctx = context.WithValue(ctx, ctxKeyActor, performedBy)
	return ctx
}

// WithContext returns a logger entry carrying whatever actor/request fields
// were attached to ctx via WithActor.
func WithContext(ctx context.Context) *logrus.Entry {
	entry := GetLogger().WithFields(logrus.Fields{})

	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok && v != "" {
		entry = entry.WithField("request_id", v)
	}
	if v, ok := ctx.Value(ctxKeyActor).(string); ok && v != "" {
		entry = entry.WithField("performed_by", v)
	}

	return entry
}
