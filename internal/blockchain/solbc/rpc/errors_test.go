package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, FailureNone},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"wrapped timeout", fmt.Errorf("probe: %w", ErrTimeout), FailureTimeout},
		{"rpc 429", &jsonrpc.RPCError{Code: 429, Message: "Too many requests"}, FailureRateLimited},
		{"rpc 403", &jsonrpc.RPCError{Code: 403, Message: "Forbidden"}, FailureForbidden},
		{"rpc 502", &jsonrpc.RPCError{Code: 502}, FailureServer},
		{"rpc node behind", &jsonrpc.RPCError{Code: -32005, Message: "Node is behind"}, FailureServer},
		{"rpc parse error", &jsonrpc.RPCError{Code: -32700}, FailureMalformed},
		{"http message 429", errors.New("rpc call getBalance() on https://x: HTTP 429 Too Many Requests"), FailureRateLimited},
		{"refused", errors.New("dial tcp 127.0.0.1:8899: connect: connection refused"), FailureUnreachable},
		{"bad json", errors.New("invalid character '<' looking for beginning of value"), FailureMalformed},
		{"unauthorized", errors.New("401 Unauthorized"), FailureForbidden},
		{"other", errors.New("something odd"), FailureOther},
		{"wrapped rpc error", NewError(&jsonrpc.RPCError{Code: 429}, "https://x", "getBalance"), FailureRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorIsMatchesClassSentinel(t *testing.T) {
	err := NewError(&jsonrpc.RPCError{Code: 429}, "https://x", "getBalance")
	assert.ErrorIs(t, err, ErrRateLimit)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "getBalance")
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(errors.New("account not found")))
	assert.True(t, IsRetryableError(&ProbeError{}))
	assert.True(t, IsRetryableError(NewError(ErrTimeout, "https://x", "getBalance")))
	assert.True(t, IsRetryableError(errors.New("503 Service Unavailable")))
}

func TestProbeErrorMessage(t *testing.T) {
	err := &ProbeError{Failures: []EndpointFailure{
		{Endpoint: "https://a", Class: FailureTimeout, Err: ErrTimeout},
		{Endpoint: "https://b", Class: FailureRateLimited, Err: ErrRateLimit},
	}}
	assert.Contains(t, err.Error(), "2 tried")
	assert.Contains(t, err.Error(), "https://b: rate_limited")
	assert.ErrorIs(t, err, ErrAllEndpointsFailed)
}
