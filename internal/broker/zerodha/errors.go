package zerodha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"mytradingsignal/internal/types"
)

// classify wraps an upstream error in the matching sentinel so the connection
// manager can apply its retry policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ke kiteconnect.Error
	if errors.As(err, &ke) {
		return fromKite(ke.Code, ke.ErrorType, ke.Message, err)
	}
	var kp *kiteconnect.Error
	if errors.As(err, &kp) && kp != nil {
		return fromKite(kp.Code, kp.ErrorType, kp.Message, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %v", types.ErrRateLimited, err)
	// the ticker reports a rejected token as a failed websocket handshake
	case strings.Contains(msg, "403") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "bad handshake") ||
		strings.Contains(msg, "tokenexception"):
		return fmt.Errorf("%w: %v", types.ErrAuthExpired, err)
	}
	return fmt.Errorf("%w: %v", types.ErrTransientNetwork, err)
}

func fromKite(code int, etype, message string, err error) error {
	switch {
	case code == http.StatusTooManyRequests || strings.Contains(strings.ToLower(message), "too many requests"):
		return fmt.Errorf("%w: %v", types.ErrRateLimited, err)
	case etype == kiteconnect.TokenError || code == http.StatusForbidden || code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", types.ErrAuthExpired, err)
	}
	return fmt.Errorf("%w: %v", types.ErrTransientNetwork, err)
}
