// Package auth handles Lightdash authentication. Lightdash personal access
// tokens are presented on every request as "Authorization: ApiKey <token>";
// there is no token-exchange service involved.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/security"
)

// Authenticator adds Lightdash API-key authentication to requests.
type Authenticator struct {
	apiKey string
	logger *zap.Logger
}

// New creates a new authenticator.
func New(apiKey string, logger *zap.Logger) (*Authenticator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if strings.ContainsAny(apiKey, " \t\r\n") {
		return nil, fmt.Errorf("API key contains whitespace; check LIGHTDASH_API_KEY")
	}

	logger.Debug("Lightdash authenticator initialized",
		zap.String("api_key", security.MaskAPIKey(apiKey)),
	)

	return &Authenticator{
		apiKey: apiKey,
		logger: logger,
	}, nil
}

// Authenticate adds the ApiKey authorization header to an HTTP request.
func (a *Authenticator) Authenticate(req *http.Request) error {
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}
	req.Header.Set("Authorization", "ApiKey "+a.apiKey)
	return nil
}

// Validate checks that a credential is present. Whether Lightdash accepts it
// is only known at call time; the health checker covers that.
func (a *Authenticator) Validate() error {
	if a.apiKey == "" {
		return fmt.Errorf("no API key configured")
	}
	return nil
}
