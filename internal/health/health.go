package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/auth"
	"github.com/datavis-labs/lightdash-mcp-server/internal/client"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Checker performs health checks against the Lightdash instance.
type Checker struct {
	client        *client.Client
	authenticator *auth.Authenticator
	logger        *zap.Logger
}

// New creates a new health checker
func New(client *client.Client, authenticator *auth.Authenticator, logger *zap.Logger) *Checker {
	return &Checker{
		client:        client,
		authenticator: authenticator,
		logger:        logger,
	}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	checks := []Check{
		c.checkAuthentication(),
		c.checkUpstream(ctx),
	}

	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

// checkAuthentication verifies the configured API key is usable
func (c *Checker) checkAuthentication() Check {
	start := time.Now()
	check := Check{
		Name:      "authentication",
		Timestamp: start,
	}

	err := c.authenticator.Validate()
	check.Duration = time.Since(start)

	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Authentication failed: %v", err)
		c.logger.Error("Health check failed: authentication",
			zap.Error(err),
			zap.Duration("duration", check.Duration),
		)
	} else {
		check.Status = StatusHealthy
		check.Message = "API key present"
		c.logger.Debug("Health check passed: authentication",
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}

// checkUpstream verifies the Lightdash instance is reachable
func (c *Checker) checkUpstream(ctx context.Context) Check {
	start := time.Now()
	check := Check{
		Name:      "lightdash_connectivity",
		Timestamp: start,
	}

	req := &client.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/health",
	}

	// Short timeout; a probe should not hang on a wedged upstream.
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.Call(checkCtx, req)
	check.Duration = time.Since(start)

	if err != nil {
		if check.Duration > 3*time.Second {
			check.Status = StatusDegraded
			check.Message = "Lightdash responding slowly"
		} else {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("Lightdash unreachable: %v", err)
		}
		c.logger.Warn("Health check failed: Lightdash connectivity",
			zap.Error(err),
			zap.Duration("duration", check.Duration),
		)
	} else {
		check.Status = StatusHealthy
		check.Message = "Lightdash reachable"
		c.logger.Debug("Health check passed: Lightdash connectivity",
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}
