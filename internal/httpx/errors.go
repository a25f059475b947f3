// internal/httpx/errors.go
package httpx

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"librecords/internal/apperr"
)

// BadRequestError is a malformed request: bad JSON, wrong content.
type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func BadRequest(msg string) error {
	return &BadRequestError{msg: msg}
}

type errorBody struct {
	Error any `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message any) {
	if err := JSON(w, status, errorBody{Error: message}); err != nil {
		Logger(r.Context()).Error("write error response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Error maps err onto a status code and writes the JSON error body.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fields apperr.FieldErrors
		badReq *BadRequestError
	)
	switch {
	case errors.As(err, &fields):
		writeError(w, r, http.StatusUnprocessableEntity, fields)
	case errors.As(err, &badReq):
		writeError(w, r, http.StatusBadRequest, badReq.msg)
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, r, http.StatusNotFound, apperr.Message(err))
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrRejected):
		writeError(w, r, http.StatusBadRequest, apperr.Message(err))
	default:
		ServerError(w, r, err)
	}
}

// ServerError logs err and hides its details from the client.
func ServerError(w http.ResponseWriter, r *http.Request, err error) {
	Logger(r.Context()).Error("request failed",
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()),
		zap.Error(err),
	)
	writeError(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "the "+r.Method+" method is not supported for this resource")
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
}
