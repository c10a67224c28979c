// Package ai talks to the LLM completion services that voice the characters.
package ai

import (
	"fmt"

	"github.com/myrjola/turingtrial/internal/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the ordered conversation sent to a completion backend. The system prompt is passed
// separately.
type Message struct {
	Role    Role
	Content string
}

type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindRateLimit ErrorKind = "rate-limit"
	KindMalformed ErrorKind = "malformed"
	KindConfig    ErrorKind = "config"
)

// BackendError is returned by completion backends. Kind tells the caller whether retrying can help.
type BackendError struct {
	Kind ErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend error: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func newBackendError(kind ErrorKind, err error) *BackendError {
	return &BackendError{Kind: kind, Err: err}
}

// KindOf returns the kind of the BackendError in err's chain, KindNetwork for any other error.
func KindOf(err error) ErrorKind {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}
	return KindNetwork
}

// Retryable reports whether sending the same request again may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimit, KindMalformed:
		return true
	case KindConfig:
		return false
	}
	return false
}

var ErrMissingAPIKey = errors.NewSentinel("missing API key")

func classifyStatus(status int) ErrorKind {
	switch {
	case status == 429: //nolint:mnd // too many requests
		return KindRateLimit
	case status >= 400 && status < 500:
		return KindConfig
	default:
		return KindNetwork
	}
}
