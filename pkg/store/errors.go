package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the document store, decoded far
// enough to classify it.
type APIError struct {
	Status int
	Type   string
	Reason string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("store: [%d] %s: %s", e.Status, e.Type, e.Reason)
	}
	return fmt.Sprintf("store: [%d] %s", e.Status, e.Type)
}

// HTTPStatus implements the interface the retry classifier uses to
// recognize 5xx and 429 responses.
func (e *APIError) HTTPStatus() int { return e.Status }

// IsAlreadyExists reports whether err means the resource already
// existed. This is a terminal, idempotent-benign outcome: callers
// treat it as success and never retry it.
func IsAlreadyExists(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Type == "resource_already_exists_exception"
}

// IsNotFound reports whether err means the target resource does not
// exist. Like IsAlreadyExists, this is never retried.
func IsNotFound(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == http.StatusNotFound || ae.Type == "index_not_found_exception"
}

// decodeAPIError turns an error response body into an *APIError. The
// body shape is {"error": {"type": ..., "reason": ...}, "status": N}.
func decodeAPIError(status int, body io.Reader) error {
	var payload struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return &APIError{Status: status}
	}
	return &APIError{Status: status, Type: payload.Error.Type, Reason: payload.Error.Reason}
}
