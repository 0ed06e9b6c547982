package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		status int
		want   Kind
	}{
		{"service unavailable code", "ServiceUnavailable", 0, KindTransient},
		{"internal error code", "InternalError", 0, KindTransient},
		{"request timeout code", "RequestTimeout", 0, KindTransient},
		{"throttling code", "Throttling", 0, KindThrottling},
		{"throttling exception code", "ThrottlingException", 0, KindThrottling},
		{"request limit code", "RequestLimitExceeded", 0, KindThrottling},
		{"access denied code", "AccessDenied", 0, KindAuthentication},
		{"unauthorized op code", "UnauthorizedOperation", 0, KindAuthentication},
		{"invalid user code", "InvalidUserID.NotFound", 0, KindAuthentication},
		{"validation exception code", "ValidationException", 0, KindValidation},
		{"invalid parameter code", "InvalidParameterValue", 0, KindValidation},
		{"malformed input code", "MalformedInput", 0, KindValidation},
		{"code wins over status", "AccessDenied", 500, KindAuthentication},
		{"status 500", "", 500, KindTransient},
		{"status 503", "", 503, KindTransient},
		{"status 429", "", 429, KindThrottling},
		{"status 400", "", 400, KindPermanent},
		{"status 403", "", 403, KindPermanent},
		{"status 404", "", 404, KindPermanent},
		{"unknown code unknown status", "SomethingElse", 0, KindTransient},
		{"no code no status", "", 0, KindTransient},
		{"unmapped 4xx", "", 410, KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.code, tt.status); got != tt.want {
				t.Errorf("Classify(%q, %d) = %v, want %v", tt.code, tt.status, got, tt.want)
			}
		})
	}
}

func TestKindRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindTransient, true},
		{KindThrottling, true},
		{KindAuthentication, false},
		{KindValidation, false},
		{KindPermanent, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Errorf("%v.Retryable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	base := Permanentf("output missing")
	wrapped := fmt.Errorf("stage failed: %w", base)

	if got := KindOf(wrapped); got != KindPermanent {
		t.Errorf("KindOf(wrapped) = %v, want %v", got, KindPermanent)
	}
	if got := KindOf(errors.New("plain")); got != KindTransient {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindTransient)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap("ServiceUnavailable", 503, cause)

	if err.Kind != KindTransient {
		t.Errorf("kind = %v, want %v", err.Kind, KindTransient)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error chain lost the cause")
	}
	if err.Code != "ServiceUnavailable" {
		t.Errorf("code = %q", err.Code)
	}
}
