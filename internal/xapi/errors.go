package xapi

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned before any request when no bearer
	// token is configured.
	ErrMissingCredential = errors.New("xapi: bearer token not configured")

	// ErrPostNotFound is returned when the API answers 200 without data.
	ErrPostNotFound = errors.New("xapi: post not found")

	// ErrTooManyIDs is returned when a batch lookup exceeds MaxBatchIDs.
	ErrTooManyIDs = errors.New("xapi: too many ids for one lookup")
)

// HTTPError is a non-2xx response from the API
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Endpoint, e.Status, e.Body)
}

// apiProblem is an entry of the "errors" array the API includes alongside
// (or instead of) data.
type apiProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Value  string `json:"value"`
}

func problemsString(problems []apiProblem) string {
	if len(problems) == 0 {
		return ""
	}
	p := problems[0]
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// truncateBytes shortens a response body for inclusion in an error.
func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
