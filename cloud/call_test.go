package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

func throttled() error {
	return &smithy.GenericAPIError{Code: "Throttling", Message: "rate exceeded"}
}

func TestCallSuccessFirstAttempt(t *testing.T) {
	calls := 0
	env := Call(context.Background(), DefaultRetryConfig(), "ce", "GetCostAndUsage", func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.True(t, env.Success)
	require.Equal(t, 42, env.Data)
	require.Nil(t, env.Err)
	require.Equal(t, 1, calls)
}

func TestCallRetriesThrottlingUntilExhausted(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	start := time.Now()
	env := Call(context.Background(), cfg, "ce", "GetCostAndUsage", func(context.Context) (int, error) {
		calls++
		return 0, throttled()
	})
	require.False(t, env.Success)
	require.Equal(t, 3, calls, "throttled call should use the full retry budget")
	require.Equal(t, ReasonMaxRetriesExceeded, env.Err.Reason())
	require.Equal(t, "Throttling", env.Err.Code)
	require.Equal(t, "ce", env.Err.Service)
	// Backoff doubles: base + 2*base between the three attempts.
	require.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}

func TestCallRecoversAfterTransientFailure(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	env := Call(context.Background(), cfg, "ec2", "DescribeInstances", func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &smithy.GenericAPIError{Code: "ServiceUnavailable"}
		}
		return "ok", nil
	})
	require.True(t, env.Success)
	require.Equal(t, "ok", env.Data)
	require.Equal(t, 2, calls)
}

func TestCallDoesNotRetryTerminalClasses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, ReasonAccessDenied},
		{"invalid parameters", &smithy.GenericAPIError{Code: "ValidationException"}, ReasonInvalidParameters},
		{"no credentials", ErrNoCredentials, ReasonNoCredentials},
		{"unknown", errors.New("boom"), ReasonUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			env := Call(context.Background(), DefaultRetryConfig(), "sts", "AssumeRole", func(context.Context) (int, error) {
				calls++
				return 0, tc.err
			})
			require.False(t, env.Success)
			require.Equal(t, 1, calls, "terminal classes must not be retried")
			require.Equal(t, tc.reason, env.Err.Reason())
		})
	}
}

func TestCallStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour}
	done := make(chan Envelope[int])
	go func() {
		done <- Call(ctx, cfg, "ce", "GetCostAndUsage", func(context.Context) (int, error) {
			return 0, throttled()
		})
	}()
	cancel()
	select {
	case env := <-done:
		require.False(t, env.Success)
	case <-time.After(time.Second):
		t.Fatal("Call did not honor context cancellation during backoff")
	}
}

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"throttling code", &smithy.GenericAPIError{Code: "RequestLimitExceeded"}, ErrorKindThrottled},
		{"access denied code", &smithy.GenericAPIError{Code: "UnauthorizedOperation"}, ErrorKindAccessDenied},
		{"validation code", &smithy.GenericAPIError{Code: "InvalidParameterValue"}, ErrorKindInvalidParameters},
		{"deadline", context.DeadlineExceeded, ErrorKindUnavailable},
		{"no credentials", ErrNoCredentials, ErrorKindNoCredentials},
		{"plain error", errors.New("weird"), ErrorKindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce := Classify("svc", "Op", tc.err)
			require.Equal(t, tc.kind, ce.Kind)
			require.ErrorIs(t, ce, tc.err)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	require.Nil(t, Classify("svc", "Op", nil))
}
