package types

import (
	"context"
	"errors"
)

var (
	// ErrAuthExpired means the upstream credential is invalid; live retries must stop.
	ErrAuthExpired = errors.New("auth expired")
	// ErrRateLimited means the upstream is throttling requests.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransientNetwork covers every other upstream failure.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrInsufficientHistory means not enough candles exist for an indicator.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrMalformedPayload means an upstream payload could not be normalized.
	ErrMalformedPayload = errors.New("malformed payload")
)

// ErrorClass is the connection manager's view of an upstream failure.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassAuth
	ClassRateLimited
	ClassCanceled
)

func (c ErrorClass) String() string {
	switch c {
	case ClassAuth:
		return "auth"
	case ClassRateLimited:
		return "rate_limited"
	case ClassCanceled:
		return "canceled"
	}
	return "transient"
}

// Classify maps an error onto the retry taxonomy. Unknown errors are transient.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	case errors.Is(err, ErrAuthExpired):
		return ClassAuth
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	}
	return ClassTransient
}
