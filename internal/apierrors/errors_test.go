package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestKindRetryability(t *testing.T) {
	tests := []struct {
		name          string
		err           *StructuredError
		wantKind      Kind
		wantRetryable bool
	}{
		{"invalid argument", NewInvalidArgument("bad shape"), KindInvalidArgument, false},
		{"missing argument", NewMissingArgument("exploreId"), KindInvalidArgument, false},
		{"session not found", NewSessionNotFound("abc"), KindSessionNotFound, false},
		{"unauthorized", NewUnauthorized(), KindUnauthorized, false},
		{"forbidden", NewForbidden("project jaffle"), KindForbidden, false},
		{"not found", NewNotFound("explore", "orders"), KindNotFound, false},
		{"rate limited", NewRateLimited(), KindRateLimited, true},
		{"upstream unavailable", NewUpstreamUnavailable("connect refused"), KindUpstreamUnavailable, true},
		{"upstream error", NewUpstreamError(418, "teapot"), KindUpstreamError, false},
		{"malformed response", NewMalformedUpstreamResponse("row missing value"), KindMalformedUpstreamResponse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.wantKind)
			}
			if tt.err.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %t, want %t", tt.err.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status        int
		wantKind      Kind
		wantRetryable bool
	}{
		{401, KindUnauthorized, false},
		{403, KindForbidden, false},
		{404, KindNotFound, false},
		{429, KindRateLimited, true},
		{500, KindUpstreamUnavailable, true},
		{502, KindUpstreamUnavailable, true},
		{503, KindUpstreamUnavailable, true},
		{400, KindUpstreamError, false},
		{409, KindUpstreamError, false},
		{418, KindUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "from upstream")
			if err.Kind != tt.wantKind {
				t.Errorf("FromHTTPStatus(%d).Kind = %s, want %s", tt.status, err.Kind, tt.wantKind)
			}
			if err.Retryable != tt.wantRetryable {
				t.Errorf("FromHTTPStatus(%d).Retryable = %t, want %t", tt.status, err.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestFromHTTPStatusPreservesUpstreamMessage(t *testing.T) {
	err := FromHTTPStatus(503, "scheduled maintenance")
	if err.Message != "scheduled maintenance" {
		t.Errorf("Message = %q, want upstream message preserved", err.Message)
	}
	if err.UpstreamStatus != 503 {
		t.Errorf("UpstreamStatus = %d, want 503", err.UpstreamStatus)
	}

	err = FromHTTPStatus(404, "")
	if err.Message == "" {
		t.Error("expected fallback message for empty upstream message")
	}

	for _, status := range []int{401, 403, 404, 429, 500, 418} {
		err = FromHTTPStatus(status, "from upstream")
		if err.Message != "from upstream" {
			t.Errorf("FromHTTPStatus(%d).Message = %q, want upstream message preserved", status, err.Message)
		}
	}
}

func TestToJSONRoundTrip(t *testing.T) {
	orig := NewNotFound("chart", "rev-by-month")

	var decoded StructuredError
	if err := json.Unmarshal([]byte(orig.ToJSON()), &decoded); err != nil {
		t.Fatalf("ToJSON produced invalid JSON: %v", err)
	}
	if decoded.Kind != KindNotFound {
		t.Errorf("decoded Kind = %s, want %s", decoded.Kind, KindNotFound)
	}
	if decoded.Retryable {
		t.Error("decoded Retryable = true, want false")
	}
	if decoded.UpstreamStatus != 404 {
		t.Errorf("decoded UpstreamStatus = %d, want 404", decoded.UpstreamStatus)
	}
}

func TestAsStructured(t *testing.T) {
	// Already structured, possibly wrapped.
	inner := NewRateLimited()
	wrapped := fmt.Errorf("calling upstream: %w", inner)
	if got := AsStructured(wrapped); got != inner {
		t.Error("AsStructured should unwrap to the original structured error")
	}

	// Plain error becomes a non-retryable UpstreamError.
	plain := errors.New("boom")
	got := AsStructured(plain)
	if got.Kind != KindUpstreamError {
		t.Errorf("Kind = %s, want %s", got.Kind, KindUpstreamError)
	}
	if got.Retryable {
		t.Error("unclassified errors must not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("wrap: %w", NewUpstreamUnavailable("timeout"))) {
		t.Error("wrapped UpstreamUnavailable should be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors should not be retryable")
	}
	if IsRetryable(NewMalformedUpstreamResponse("bad rows")) {
		t.Error("malformed responses must not be retryable")
	}
}
