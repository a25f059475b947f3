// internal/httpx/params.go
package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"librecords/internal/apperr"
	"librecords/internal/store"
	"librecords/internal/validator"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// IDParam reads a positive integer route parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.FieldErrors{name: "must be a positive integer"}
	}
	return id, nil
}

// PageParams reads skip (>= 0, default 0) and limit (1..1000, default 100).
func PageParams(r *http.Request) (store.Page, error) {
	qs := r.URL.Query()
	v := validator.New()

	skip := readInt(qs.Get("skip"), 0, "skip", v)
	limit := readInt(qs.Get("limit"), DefaultLimit, "limit", v)
	v.Check(skip >= 0, "skip", "must be greater than or equal to 0")
	v.Range(limit, 1, MaxLimit, "limit")

	if err := v.Err(); err != nil {
		return store.Page{}, err
	}
	return store.Page{Skip: uint(skip), Limit: uint(limit)}, nil
}

func readInt(s string, fallback int, key string, v *validator.Validator) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		v.AddError(key, "must be an integer value")
		return fallback
	}
	return n
}
