package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/config"
)

// mockAuthenticator implements the Authenticator interface for testing
type mockAuthenticator struct{}

func (m *mockAuthenticator) Authenticate(req *http.Request) error {
	req.Header.Set("Authorization", "ApiKey test-api-key")
	return nil
}

// newTestConfig creates a test configuration pointing to the given server URL
func newTestConfig(serverURL string) *config.Config {
	return &config.Config{
		ServiceURL:      serverURL,
		APIKey:          "test-api-key", // pragma: allowlist secret
		Timeout:         5 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
		TLSVerify:       true,
	}
}

// newTestClient creates a client for testing with a mock authenticator
func newTestClient(serverURL string) *Client {
	cfg := newTestConfig(serverURL)

	return &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		config:        cfg,
		logger:        zap.NewNop(),
		authenticator: &mockAuthenticator{},
		version:       "test",
	}
}

func okEnvelope(results any) []byte {
	body, _ := json.Marshal(map[string]any{
		"status":  "ok",
		"results": results,
	})
	return body
}

func errorEnvelope(statusCode int, name, message string) []byte {
	body, _ := json.Marshal(map[string]any{
		"status": "error",
		"error": map[string]any{
			"name":       name,
			"statusCode": statusCode,
			"message":    message,
		},
	})
	return body
}

func TestNew(t *testing.T) {
	cfg := newTestConfig("https://lightdash.example.com")

	client, err := New(cfg, zap.NewNop(), "1.0.0")
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, "1.0.0", client.version)

	cfg.APIKey = ""
	_, err = New(cfg, zap.NewNop(), "1.0.0")
	assert.Error(t, err)
}

func TestCall_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/org/projects", r.URL.Path)
		assert.Equal(t, "ApiKey test-api-key", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "lightdash-mcp-server/")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(okEnvelope([]map[string]any{
			{"projectUuid": "abc-123", "name": "Analytics"},
		}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	results, err := client.Call(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/api/v1/org/projects",
	})
	require.NoError(t, err)

	projects, ok := results.([]any)
	require.True(t, ok)
	require.Len(t, projects, 1)
	project := projects[0].(map[string]any)
	assert.Equal(t, "Analytics", project["name"])
}

func TestCall_QueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "revenue", r.URL.Query().Get("search"))
		_, _ = w.Write(okEnvelope([]any{}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Call(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/api/v1/projects/abc/dataCatalog",
		Query:  map[string]string{"search": "revenue"},
	})
	require.NoError(t, err)
}

func TestCall_PostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "orders", body["exploreName"])

		_, _ = w.Write(okEnvelope(map[string]any{"rows": []any{}}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Call(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/v1/projects/abc/explores/orders/runQuery",
		Body:   map[string]any{"exploreName": "orders"},
	})
	require.NoError(t, err)
}

func TestCall_UpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantKind   apierrors.Kind
		wantRetry  bool
	}{
		{"unauthorized", http.StatusUnauthorized, apierrors.KindUnauthorized, false},
		{"forbidden", http.StatusForbidden, apierrors.KindForbidden, false},
		{"not found", http.StatusNotFound, apierrors.KindNotFound, false},
		{"rate limited", http.StatusTooManyRequests, apierrors.KindRateLimited, true},
		{"server error", http.StatusInternalServerError, apierrors.KindUpstreamUnavailable, true},
		{"bad gateway", http.StatusBadGateway, apierrors.KindUpstreamUnavailable, true},
		{"unprocessable", http.StatusUnprocessableEntity, apierrors.KindUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write(errorEnvelope(tt.status, "ApiError", "upstream rejected the request"))
			}))
			defer server.Close()

			client := newTestClient(server.URL)

			_, err := client.Call(context.Background(), &Request{
				Method: http.MethodGet,
				Path:   "/api/v1/org/projects",
			})
			require.Error(t, err)

			structured := apierrors.AsStructured(err)
			assert.Equal(t, tt.wantKind, structured.Kind)
			assert.Equal(t, tt.wantRetry, structured.Retryable)
			assert.Contains(t, structured.Message, "upstream rejected the request")
		})
	}
}

func TestCall_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway error</html>"},
		{"wrong status field", `{"status":"error","results":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL)

			_, err := client.Call(context.Background(), &Request{
				Method: http.MethodGet,
				Path:   "/api/v1/org/projects",
			})
			require.Error(t, err)

			structured := apierrors.AsStructured(err)
			assert.Equal(t, apierrors.KindMalformedUpstreamResponse, structured.Kind)
			assert.False(t, structured.Retryable)
		})
	}
}

func TestCall_ConnectionFailure(t *testing.T) {
	// The listener is closed before the call, so the dial fails.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := newTestClient(serverURL)

	_, err := client.Call(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/api/v1/org/projects",
	})
	require.Error(t, err)

	structured := apierrors.AsStructured(err)
	assert.Equal(t, apierrors.KindUpstreamUnavailable, structured.Kind)
	assert.True(t, structured.Retryable)
}

func TestCall_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write(okEnvelope(nil))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.Call(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/api/v1/org/projects",
	})
	require.Error(t, err)

	structured := apierrors.AsStructured(err)
	assert.Equal(t, apierrors.KindUpstreamUnavailable, structured.Kind)
	assert.True(t, structured.Retryable)
}

func TestCall_SingleAttempt(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write(errorEnvelope(429, "TooManyRequests", "slow down"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Call(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/api/v1/org/projects",
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCall_EmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	results, err := client.Call(context.Background(), &Request{
		Method: http.MethodGet,
		Path:   "/api/v1/org/projects",
	})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestClose(t *testing.T) {
	client := newTestClient("https://lightdash.example.com")
	assert.NoError(t, client.Close())
}
