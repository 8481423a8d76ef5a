package connector

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"unauthorized", Unauthorized("list", errors.New("bad token")), ClassUnauthorized},
		{"rate limited", RateLimited("list", time.Second, errors.New("throttled")), ClassRateLimited},
		{"transient", Transient("list", errors.New("connection reset")), ClassTransient},
		{"permanent", Permanent("describe", errors.New("not found")), ClassPermanent},
		{"wrapped", fmt.Errorf("run failed: %w", Unauthorized("list", errors.New("expired"))), ClassUnauthorized},
		{"plain error defaults to transient", errors.New("boom"), ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := RateLimited("list", 30*time.Second, errors.New("throttled"))
	if got := RetryAfterHint(err); got != 30*time.Second {
		t.Errorf("RetryAfterHint() = %v, want 30s", got)
	}
	if got := RetryAfterHint(Transient("list", errors.New("x"))); got != 0 {
		t.Errorf("RetryAfterHint() = %v for transient, want 0", got)
	}
}
