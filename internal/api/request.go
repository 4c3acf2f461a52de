package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxBodySize is the maximum allowed request body size (1 MB).
const MaxBodySize = 1 << 20

// DecodeJSON reads and decodes a JSON request body into dst.
// It returns user-friendly error messages instead of leaking Go internals.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}

	// Enforce max body size.
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	// Translate common JSON errors into friendly messages.
	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		return fmt.Errorf("invalid value for field %q: expected %s", unmarshalTypeErr.Field, unmarshalTypeErr.Type)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds maximum size of %d bytes", MaxBodySize)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return fmt.Errorf("unknown field %s", field)
	default:
		return errors.New("invalid JSON in request body")
	}
}

// QueryError describes a query parameter that could not be parsed
type QueryError struct {
	Param    string
	Expected string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("Invalid %s: expected %s", e.Param, e.Expected)
}

// QueryID parses a positive integer id. An absent parameter yields 0.
func QueryID(r *http.Request, key string) (uint, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, &QueryError{Param: key, Expected: "a positive integer"}
	}
	return uint(id), nil
}

// QueryTime parses an RFC3339 timestamp, with or without fractional seconds.
// An absent parameter yields nil.
func QueryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, &QueryError{Param: key, Expected: "an RFC3339 timestamp"}
	}
	t = t.UTC()
	return &t, nil
}

// QueryBool parses a boolean flag. An absent parameter yields false.
func QueryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &QueryError{Param: key, Expected: "true or false"}
	}
	return b, nil
}

// QueryLimit parses a positive result limit, capped at maxLimit
func QueryLimit(r *http.Request, key string, defaultLimit, maxLimit int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &QueryError{Param: key, Expected: "a positive integer"}
	}
	return min(n, maxLimit), nil
}
