package catalog

import (
	"errors"
	"strings"
)

// Expected backend outcomes, returned as values rather than raised as
// failures so callers can pattern-match them.
var (
	// ErrAlreadyRequested means the item (or its episodes) is already
	// requested or present in the library.
	ErrAlreadyRequested = errors.New("item already requested")
	// ErrNoPermission means the mapped username may not request this item.
	ErrNoPermission = errors.New("no permission to request")
	// ErrUnmappedIdentifier means the wallet identifier has no configured
	// backend username. This is an operator configuration gap, not a user
	// error.
	ErrUnmappedIdentifier = errors.New("identifier has no catalog username")
)

type backendError struct {
	IsError      bool   `json:"isError"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// classifyBackendError translates the backend's error body into typed
// errors. The substring rules mirror the backend's message contract; they
// live only here so a contract change touches one function.
func classifyBackendError(body backendError) error {
	if !body.IsError {
		return nil
	}
	message := strings.ToLower(body.ErrorMessage)
	switch {
	case strings.Contains(message, "already have episodes") ||
		strings.Contains(message, "already requested") ||
		strings.Contains(message, "already available"):
		return ErrAlreadyRequested
	case strings.Contains(message, "do not have permissions to"):
		return ErrNoPermission
	default:
		if body.ErrorMessage != "" {
			return errors.New("catalog backend: " + body.ErrorMessage)
		}
		return errors.New("catalog backend error " + body.ErrorCode)
	}
}
