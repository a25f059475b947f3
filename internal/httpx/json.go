// internal/httpx/json.go
package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const maxBodyBytes = 1 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}

// ReadJSON decodes exactly one JSON value from the body into dst. Unknown
// fields and bodies over 1 MiB are rejected. Every failure is a
// *BadRequestError.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return BadRequest("body must not be empty")
		case errors.As(err, &maxBytesErr), strings.Contains(err.Error(), "request body too large"):
			return BadRequest(fmt.Sprintf("body must not be larger than %d bytes", maxBodyBytes))
		case strings.Contains(err.Error(), "unknown field"):
			return BadRequest("body contains unknown field: " + err.Error())
		default:
			return BadRequest("body contains badly-formed JSON: " + err.Error())
		}
	}

	if dec.More() {
		return BadRequest("body must only contain a single JSON value")
	}
	return nil
}
