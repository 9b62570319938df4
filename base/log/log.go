// Package log is the process wide structured logger: zap for output,
// sentry for error level entries once Init is given a dsn.
package log

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	sentrygo "github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Fields map[string]interface{}

type Config struct {
	Level     string
	SentryDSN string
	// Tags are attached to every sentry event
	Tags map[string]string
}

var (
	root   atomic.Pointer[zap.SugaredLogger]
	sentry atomic.Pointer[sentrygo.Client]
)

func init() {
	z, _ := zap.NewProduction(zap.AddCallerSkip(1))
	root.Store(z.Sugar())
}

// Init replaces the root logger. Loggers handed out before keep writing to
// the previous one.
func Init(cfg Config) error {
	zc := zap.NewProductionConfig()
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	if cfg.SentryDSN != "" {
		if z, err = withSentry(z, cfg); err != nil {
			return err
		}
	}
	root.Store(z.Sugar())
	return nil
}

func withSentry(z *zap.Logger, cfg Config) (*zap.Logger, error) {
	client, err := sentrygo.NewClient(sentrygo.ClientOptions{Dsn: cfg.SentryDSN})
	if err != nil {
		return nil, err
	}
	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags:              cfg.Tags,
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		return nil, err
	}
	sentry.Store(client)
	return zapsentry.AttachCoreToLogger(core, z), nil
}

// Flush is called on the way out of main
func Flush(timeout time.Duration) {
	_ = root.Load().Sync()
	if c := sentry.Load(); c != nil {
		c.Flush(timeout)
	}
}

// Logger collects fields and hands them to zap when a line is written
type Logger struct {
	z      *zap.SugaredLogger
	fields []interface{}
}

func Log() Logger {
	return Logger{z: root.Load()}
}

func (l Logger) WithField(key string, value interface{}) Logger {
	// copy so siblings derived from l never share a backing array
	fields := make([]interface{}, len(l.fields), len(l.fields)+2)
	copy(fields, l.fields)
	l.fields = append(fields, key, value)
	return l
}

// WithFields adds kvs in key order
func (l Logger) WithFields(kvs Fields) Logger {
	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l = l.WithField(k, kvs[k])
	}
	return l
}

func (l Logger) sugar() *zap.SugaredLogger {
	return l.z.With(l.fields...)
}

func (l Logger) Debug(args ...interface{}) { l.sugar().Debug(args...) }
func (l Logger) Info(args ...interface{})  { l.sugar().Info(args...) }
func (l Logger) Warn(args ...interface{})  { l.sugar().Warn(args...) }
func (l Logger) Error(args ...interface{}) { l.sugar().Error(args...) }
func (l Logger) Panic(args ...interface{}) { l.sugar().Panic(args...) }
