package delivery

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/service/query"
)

type JsonResponseStatus string

const (
	JsonResponseStatusSuccess JsonResponseStatus = "success"
	JsonResponseStatusFail    JsonResponseStatus = "fail"
)

type JsonResponse struct {
	Data   interface{}        `json:"data"`
	Status JsonResponseStatus `json:"status"`
}

// StatusOf maps domain errors to http status codes
func StatusOf(err error, fallback int) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBadParamInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	}
	return fallback
}

func MakeJsonResp(c echo.Context, status int, data interface{}) error {
	if err, ok := data.(error); ok {
		status = StatusOf(err, status)
		data = err.Error()
	}

	if status >= 400 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusFail})
	}

	if status >= 200 && status < 300 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusSuccess})
	}

	return c.JSON(status, data)
}

const MIMEApplicationNDJSON = "application/x-ndjson"

// NDJSONWriter writes one json document per line and flushes after each
type NDJSONWriter struct {
	c       echo.Context
	enc     *json.Encoder
	started bool
}

func NewNDJSONWriter(c echo.Context) *NDJSONWriter {
	return &NDJSONWriter{c: c, enc: json.NewEncoder(c.Response())}
}

func (w *NDJSONWriter) begin() {
	if w.started {
		return
	}
	w.c.Response().Header().Set(echo.HeaderContentType, MIMEApplicationNDJSON)
	w.c.Response().WriteHeader(http.StatusOK)
	w.started = true
}

func (w *NDJSONWriter) Write(v interface{}) error {
	w.begin()
	if err := w.enc.Encode(v); err != nil {
		return err
	}
	w.c.Response().Flush()
	return nil
}

// Finish sends the headers of an empty stream
func (w *NDJSONWriter) Finish() {
	w.begin()
	w.c.Response().Flush()
}
