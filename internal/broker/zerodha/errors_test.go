package zerodha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"mytradingsignal/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorClass
	}{
		{"token exception", kiteconnect.Error{Code: http.StatusForbidden, ErrorType: kiteconnect.TokenError, Message: "Incorrect `api_key` or `access_token`."}, types.ClassAuth},
		{"permission 403", kiteconnect.Error{Code: http.StatusForbidden, ErrorType: kiteconnect.PermissionError, Message: "Insufficient permission"}, types.ClassAuth},
		{"wrapped kite error", fmt.Errorf("quote: %w", kiteconnect.Error{Code: http.StatusForbidden, ErrorType: kiteconnect.TokenError}), types.ClassAuth},
		{"rate limited status", kiteconnect.Error{Code: http.StatusTooManyRequests, ErrorType: kiteconnect.NetworkError, Message: "Too many requests"}, types.ClassRateLimited},
		{"rate limited message", kiteconnect.Error{Code: http.StatusServiceUnavailable, ErrorType: kiteconnect.NetworkError, Message: "Too many requests"}, types.ClassRateLimited},
		{"gateway down", kiteconnect.Error{Code: http.StatusServiceUnavailable, ErrorType: kiteconnect.NetworkError, Message: "Gateway timed out"}, types.ClassTransient},
		{"handshake rejected", errors.New("websocket: bad handshake"), types.ClassAuth},
		{"handshake 429", errors.New("unexpected status 429 from ticker"), types.ClassRateLimited},
		{"connection reset", errors.New("read tcp: connection reset by peer"), types.ClassTransient},
		{"cancelled", context.Canceled, types.ClassCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := types.Classify(classify(tt.err)); got != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if err := classify(nil); err != nil {
		t.Fatalf("classify(nil) = %v", err)
	}
}
