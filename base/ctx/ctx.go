// Package ctx pairs a context.Context with the logger that carries its
// fields, so whatever is attached to a request also shows up in its logs.
package ctx

import (
	"context"
	"time"

	"github.com/x-xyz/listingengine/base/log"
)

type Ctx struct {
	context.Context
	log.Logger
}

// fieldKey keeps values set through WithValue apart from other packages' keys
type fieldKey string

func Background() Ctx {
	return Ctx{Context: context.Background(), Logger: log.Log()}
}

// From adopts a plain context, e.g. the one of an http request
func From(parent context.Context) Ctx {
	if c, ok := parent.(Ctx); ok {
		return c
	}
	return Ctx{Context: parent, Logger: log.Log()}
}

// Detach keeps the values and logger of parent without its deadline or
// cancellation
func Detach(parent Ctx) Ctx {
	return parent.derive(context.WithoutCancel(parent.Context))
}

// WithValue stores val under key and adds it to every following log line
func WithValue(parent Ctx, key string, val interface{}) Ctx {
	return Ctx{
		Context: context.WithValue(parent.Context, fieldKey(key), val),
		Logger:  parent.Logger.WithField(key, val),
	}
}

func WithValues(parent Ctx, kvs map[string]interface{}) Ctx {
	for k, v := range kvs {
		parent = WithValue(parent, k, v)
	}
	return parent
}

// Field returns what WithValue stored under key
func Field(c context.Context, key string) interface{} {
	return c.Value(fieldKey(key))
}

func WithCancel(parent Ctx) (Ctx, context.CancelFunc) {
	c, cancel := context.WithCancel(parent.Context)
	return parent.derive(c), cancel
}

func WithTimeout(parent Ctx, d time.Duration) (Ctx, context.CancelFunc) {
	c, cancel := context.WithTimeout(parent.Context, d)
	return parent.derive(c), cancel
}

func (c Ctx) derive(inner context.Context) Ctx {
	return Ctx{Context: inner, Logger: c.Logger}
}
