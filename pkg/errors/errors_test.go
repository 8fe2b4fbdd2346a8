package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewAndCode(t *testing.T) {
	err := New(ErrCodeRuleNotFound, "rule 123 not found")
	if err.Code != ErrCodeRuleNotFound {
		t.Fatalf("got code %s, want %s", err.Code, ErrCodeRuleNotFound)
	}
	if err.HTTPStatus() != http.StatusNotFound {
		t.Errorf("got status %d, want %d", err.HTTPStatus(), http.StatusNotFound)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want bool
	}{
		{"catalog unavailable", ErrCodeCatalogUnavailable, true},
		{"schedule store unavailable", ErrCodeScheduleStoreUnavailable, true},
		{"provider transient", ErrCodeProviderTransient, true},
		{"rule not found", ErrCodeRuleNotFound, false},
		{"malformed payload", ErrCodeMalformedPayload, false},
		{"provider permanent", ErrCodeProviderPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom")
			if got := err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(cause, ErrCodeCatalogUnavailable, "could not reach catalog")

	if !errors.Is(wrapped, wrapped) {
		t.Fatalf("expected self-identity")
	}
	if errors.Unwrap(wrapped) != cause {
		t.Errorf("Unwrap() did not return original cause")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "should stay nil") != nil {
		t.Fatal("Wrap(nil, ...) should return nil")
	}
}

func TestAsAppErrorAndIs(t *testing.T) {
	err := New(ErrCodeTemplateCycle, "cycle detected")
	var wrapped error = err

	appErr, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to succeed")
	}
	if appErr.Code != ErrCodeTemplateCycle {
		t.Errorf("got code %s, want %s", appErr.Code, ErrCodeTemplateCycle)
	}
	if !Is(wrapped, ErrCodeTemplateCycle) {
		t.Error("Is() should report true for matching code")
	}
	if Is(wrapped, ErrCodeNotFound) {
		t.Error("Is() should report false for non-matching code")
	}
}

func TestGetCodeOnPlainError(t *testing.T) {
	plain := errors.New("not an app error")
	if GetCode(plain) != ErrCodeUnknown {
		t.Errorf("got %s, want %s for plain error", GetCode(plain), ErrCodeUnknown)
	}
	if IsRetryable(plain) {
		t.Error("plain error should not be retryable")
	}
}
