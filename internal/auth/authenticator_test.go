package auth

import (
	"net/http"
	"testing"

	"go.uber.org/zap"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", zap.NewNop()); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("ldpat with spaces", zap.NewNop()); err == nil {
		t.Error("expected error for key containing whitespace")
	}
}

func TestAuthenticateSetsHeader(t *testing.T) {
	a, err := New("ldpat_0123456789", zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://analytics.example.com/api/v1/org/projects", nil)
	if err := a.Authenticate(req); err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}

	if got := req.Header.Get("Authorization"); got != "ApiKey ldpat_0123456789" {
		t.Errorf("Authorization = %q, want ApiKey header", got)
	}
}

func TestAuthenticateNilRequest(t *testing.T) {
	a, _ := New("ldpat_0123456789", zap.NewNop())
	if err := a.Authenticate(nil); err == nil {
		t.Error("expected error for nil request")
	}
}

func TestValidate(t *testing.T) {
	a, _ := New("ldpat_0123456789", zap.NewNop())
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}
