package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/delivery"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/base/validator"
)

const (
	HeaderAdminKey = "X-Admin-Key"
	// CtxKey is where AddContext leaves the request's ctx.Ctx
	CtxKey = "ctx"
)

// GoMiddleware holds the middlewares that report http metrics
type GoMiddleware struct {
	met metrics.Service
}

func InitMiddleware() *GoMiddleware {
	return &GoMiddleware{met: metrics.New("http")}
}

// Ctx returns the ctx.Ctx of the request, a background one when AddContext
// did not run
func Ctx(c echo.Context) ctx.Ctx {
	if cx, ok := c.Get(CtxKey).(ctx.Ctx); ok {
		return cx
	}
	return ctx.From(c.Request().Context())
}

// AddContext derives a ctx.Ctx from the request, so a handler stops when
// its client goes away, and tags it with the request id.
func (m *GoMiddleware) AddContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cx := ctx.From(c.Request().Context())
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				cx = ctx.WithValue(cx, "requestID", id)
			}
			c.Set(CtxKey, cx)
			return next(c)
		}
	}
}

// ResponseLogger writes one line and one timing per request
func (m *GoMiddleware) ResponseLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()
			err := next(c)
			if err != nil {
				// render now so the status below is the one sent
				c.Error(err)
			}
			res := c.Response()
			m.met.BumpTime("request.time", "method", req.Method, "path", c.Path(), "status", http.StatusText(res.Status)).End()

			fields := log.Fields{
				"ms":         float64(time.Since(start).Microseconds()) / 1000,
				"httpStatus": res.Status,
				"httpMethod": req.Method,
				"uri":        req.URL.Path,
				"remoteIP":   c.RealIP(),
				"size":       res.Size,
				"userAgent":  req.UserAgent(),
			}
			l := Ctx(c).WithFields(fields)
			switch {
			case res.Status >= http.StatusInternalServerError:
				l.WithField("err", err).Error("response")
			case res.Status >= http.StatusBadRequest:
				l.WithField("err", err).Warn("response")
			default:
				l.Info("response")
			}
			return nil
		}
	}
}

// IsValidAddress rejects requests whose path param is not an address
func IsValidAddress(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if validator.IsValidAddress(c.Param(param)) {
				return next(c)
			}
			return delivery.MakeJsonResp(c, http.StatusBadRequest, "invalid address")
		}
	}
}

// AdminKey admits requests carrying one of keys in X-Admin-Key. Empty keys
// never match, so an empty list locks the route.
func AdminKey(keys []string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + HeaderAdminKey,
		Validator: func(key string, _ echo.Context) (bool, error) {
			for _, k := range keys {
				if k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, nil
		},
		ErrorHandler: func(error, echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "require admin key")
		},
	})
}
