package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func TestWithBackoff_Success(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: 1 * time.Millisecond}
	attempts := 0

	operation := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &StatusError{StatusCode: 503}
		}
		return nil
	}

	if err := WithBackoff(context.Background(), config, operation); err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
}

func TestWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	config := Config{MaxRetries: 2, BaseDelay: 1 * time.Millisecond}
	attempts := 0

	operation := func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	}

	err := WithBackoff(context.Background(), config, operation)
	if err == nil {
		t.Fatal("Expected failure, got success")
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
	if !strings.HasPrefix(err.Error(), "operation failed after 3 attempts") {
		t.Fatalf("Expected retry failure error, got: %v", err)
	}
}

func TestWithBackoff_NonRetryableError(t *testing.T) {
	config := Config{MaxRetries: 3, BaseDelay: 1 * time.Millisecond}
	attempts := 0

	operation := func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("discord: %w", &StatusError{StatusCode: 400})
	}

	err := WithBackoff(context.Background(), config, operation)
	if err == nil {
		t.Fatal("Expected failure, got success")
	}
	if attempts != 1 {
		t.Fatalf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}
	if !strings.HasPrefix(err.Error(), "non-retryable error") {
		t.Fatalf("Expected non-retryable error, got: %v", err)
	}

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 400 {
		t.Fatalf("Expected wrapped StatusError, got: %v", err)
	}
}

func TestWithBackoff_PermanentError(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("bad payload: %w", ErrPermanent)
	})
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("Expected ErrPermanent, got: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("Expected 1 attempt, got %d", attempts)
	}
}

func TestWithBackoff_HonoursRetryAfter(t *testing.T) {
	config := Config{MaxRetries: 1, BaseDelay: time.Millisecond}
	attempts := 0

	start := time.Now()
	err := WithBackoff(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return &StatusError{StatusCode: 429, RetryAfter: 40 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("Expected to wait for Retry-After, waited %v", elapsed)
	}
}

func TestWithBackoff_ContextCancellation(t *testing.T) {
	config := Config{MaxRetries: 5, BaseDelay: 100 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	operation := func(ctx context.Context) error {
		return errors.New("retryable error")
	}

	start := time.Now()
	err := WithBackoff(ctx, config, operation)
	duration := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context error, got: %v", err)
	}
	if duration > 200*time.Millisecond {
		t.Fatalf("Expected quick abort, took %v", duration)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"5xx server error", &StatusError{StatusCode: 500}, true},
		{"502 bad gateway", fmt.Errorf("send: %w", &StatusError{StatusCode: 502}), true},
		{"429 rate limit", &StatusError{StatusCode: 429}, true},
		{"400 bad request", &StatusError{StatusCode: 400}, false},
		{"401 unauthorized", &StatusError{StatusCode: 401}, false},
		{"404 not found", &StatusError{StatusCode: 404}, false},
		{"permanent", fmt.Errorf("x: %w", ErrPermanent), false},
		{"canceled", context.Canceled, false},
		{"unknown error", errors.New("some unknown error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := isRetryableError(tt.err); result != tt.expected {
				t.Errorf("isRetryableError(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestHTTPStatusRetryable(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{200, false},
		{400, false},
		{403, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if result := HTTPStatusRetryable(tt.status); result != tt.expected {
				t.Errorf("HTTPStatusRetryable(%d) = %v, expected %v", tt.status, result, tt.expected)
			}
		})
	}
}
