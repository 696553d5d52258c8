package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// Sentinel errors matched with errors.Is against a *ProviderError.
var (
	ErrProvider        = errors.New("provider error")
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrEmptyResponse is returned by clients when the provider answers
	// without any content.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindCircuitOpen ErrorKind = "circuit_open"
	KindBadRequest  ErrorKind = "bad_request"
	KindMalformed   ErrorKind = "malformed"
)

// ProviderError is returned for every failed gateway invocation.
type ProviderError struct {
	Provider  string
	Operation model.OperationType
	Kind      ErrorKind
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Operation, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the package sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProvider:
		return true
	case ErrProviderTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// Temporary reports whether resubmitting the same request may succeed.
func (e *ProviderError) Temporary() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindUnavailable, KindCircuitOpen:
		return true
	}
	return false
}

// IsProviderError reports whether err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

func newProviderError(provider string, op model.OperationType, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Operation: op, Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	if errors.Is(err, ErrEmptyResponse) {
		return KindMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return KindCircuitOpen
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return kindForStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return kindForStatus(reqErr.HTTPStatusCode)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"):
		return KindRateLimited
	case strings.Contains(msg, "529"), strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"):
		return KindUnavailable
	case strings.Contains(msg, "400"), strings.Contains(msg, "invalid_request"):
		return KindBadRequest
	}
	return KindUnavailable
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindBadRequest
	}
	return KindUnavailable
}
