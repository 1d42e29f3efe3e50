// Package server provides the MCP server implementation for the Lightdash
// gateway.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/audit"
	"github.com/datavis-labs/lightdash-mcp-server/internal/auth"
	"github.com/datavis-labs/lightdash-mcp-server/internal/cache"
	"github.com/datavis-labs/lightdash-mcp-server/internal/client"
	"github.com/datavis-labs/lightdash-mcp-server/internal/config"
	"github.com/datavis-labs/lightdash-mcp-server/internal/dispatch"
	"github.com/datavis-labs/lightdash-mcp-server/internal/health"
	"github.com/datavis-labs/lightdash-mcp-server/internal/metrics"
	"github.com/datavis-labs/lightdash-mcp-server/internal/prompts"
	"github.com/datavis-labs/lightdash-mcp-server/internal/resources"
	"github.com/datavis-labs/lightdash-mcp-server/internal/session"
	"github.com/datavis-labs/lightdash-mcp-server/internal/tools"
)

// Server represents the MCP server
type Server struct {
	mcpServer    *mcp.Server
	apiClient    *client.Client
	config       *config.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	version      string
	healthServer *health.Server

	sessions   *session.Manager
	store      *cache.Store
	dispatcher *dispatch.Dispatcher
	auditLog   *audit.Logger
	defs       []tools.Definition

	// sessionID is the gateway session backing this stdio connection.
	// Opened in Start, closed when the transport ends, and reopened if
	// the idle sweeper evicts it mid-connection.
	sessionMu sync.Mutex
	sessionID string
}

// New creates a new MCP server instance.
func New(cfg *config.Config, logger *zap.Logger, version string) (*Server, error) {
	apiClient, err := client.New(cfg, logger, version)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	// Separate authenticator instance for health checks
	authenticator, err := auth.New(cfg.APIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Lightdash MCP Server",
		Version: version,
	}, &mcp.ServerOptions{
		HasTools:     true,
		HasPrompts:   true,
		HasResources: true,
	})

	metricsTracker := metrics.New(logger)

	sessions := session.NewManager(session.Config{
		IdleTimeout:   cfg.SessionIdleTimeout,
		MaxSessions:   cfg.MaxSessions,
		SweepInterval: cfg.SessionSweepInterval,
	}, logger)

	store := cache.New()
	ttl := cache.TTLPolicy{
		Schema:  cfg.SchemaTTL,
		Listing: cfg.ListingTTL,
		Search:  cfg.SearchTTL,
	}

	auditLog := audit.NewLogger(logger, cfg.EnableAuditLog)

	s := &Server{
		mcpServer: mcpServer,
		apiClient: apiClient,
		config:    cfg,
		logger:    logger,
		metrics:   metricsTracker,
		version:   version,
		sessions:  sessions,
		store:     store,
		auditLog:  auditLog,
	}

	s.defs = tools.NewCatalog(tools.CatalogDeps{
		DefaultProject: cfg.ProjectUUID,
		SessionInfo:    s.sessionInfo,
		CacheStats:     store.Stats,
		Version:        version,
	})

	registry := dispatch.NewRegistry()
	if err := tools.Register(registry, s.defs); err != nil {
		return nil, fmt.Errorf("failed to build operation catalog: %w", err)
	}

	s.dispatcher = dispatch.New(registry, apiClient, store, ttl, sessions, metricsTracker, logger,
		dispatch.Options{
			MaxAttempts: cfg.MaxAttempts,
			BackoffBase: cfg.RetryBaseDelay,
			BackoffMax:  cfg.RetryMaxDelay,
		})

	if cfg.HealthPort > 0 {
		healthChecker := health.New(apiClient, authenticator, logger)
		s.healthServer = health.NewServer(healthChecker, logger, cfg.HealthPort, cfg.HealthBindAddr, cfg.MetricsEndpoint)
	}

	s.registerTools()
	s.registerPrompts()
	s.registerResources()

	return s, nil
}

// sessionInfo renders one session for the session_context tool.
func (s *Server) sessionInfo(sessionID string) (map[string]any, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, apierrors.NewSessionNotFound(sessionID)
	}
	return map[string]any{
		"id":               sess.ID,
		"created_at":       sess.CreatedAt,
		"last_activity_at": sess.LastActivityAt,
		"expires_at":       sess.ExpiresAt(s.sessions.IdleTimeout()),
		"active_sessions":  s.sessions.ActiveCount(),
	}, nil
}

// registerTools registers every catalog operation as an MCP tool. Handlers
// all funnel into the dispatcher.
func (s *Server) registerTools() {
	for _, def := range s.defs {
		s.registerTool(def)
	}
	s.logger.Info("Registered all MCP tools", zap.Int("count", len(s.defs)))
}

func (s *Server) registerTool(def tools.Definition) {
	name := def.Operation.Name

	handler := func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		var args map[string]any
		if len(request.Params.Arguments) > 0 {
			if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
				s.metrics.RecordOperation(name, false, time.Since(start))
				return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
			}
		}

		sid := s.ensureSession()
		ctx = session.WithID(ctx, sid)
		result, err := s.dispatcher.Invoke(ctx, name, sid, args)
		duration := time.Since(start)

		success := err == nil
		s.metrics.RecordOperation(name, success, duration)
		s.metrics.SetActiveSessions(s.sessions.ActiveCount())

		entry := audit.Entry{
			Tool:      name,
			SessionID: sid,
			Success:   success,
			Duration:  duration,
		}
		if err != nil {
			entry.ErrorKind = apierrors.KindOf(err)
		}
		s.auditLog.Log(ctx, entry)

		if err != nil {
			s.logger.Warn("Tool call failed",
				zap.String("tool", name),
				zap.String("kind", string(apierrors.KindOf(err))),
				zap.Duration("duration", duration),
			)
			return tools.NewToolResultFromError(err), nil
		}
		return tools.NewToolResultJSON(result)
	}

	s.mcpServer.AddTool(def.Tool(), handler)
	s.logger.Debug("Registered tool", zap.String("tool", name))
}

// ensureSession returns the gateway session backing this stdio connection,
// opening a replacement if the idle sweeper evicted the current one. The
// transport stays up across idle periods, so the connection must never be
// stranded with a dead session.
func (s *Server) ensureSession() string {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if _, ok := s.sessions.Get(s.sessionID); ok {
		return s.sessionID
	}

	expired := s.sessionID
	s.sessionID = s.sessions.Open()
	s.logger.Info("Gateway session expired, opened replacement",
		zap.String("expired_session_id", expired),
		zap.String("session_id", s.sessionID),
	)
	return s.sessionID
}

// registerPrompts registers all available MCP prompts
func (s *Server) registerPrompts() {
	registry := prompts.NewRegistry(s.logger)

	for _, p := range registry.GetPrompts() {
		s.mcpServer.AddPrompt(p.Prompt, p.Handler)
		s.logger.Debug("Registered prompt", zap.String("prompt", p.Prompt.Name))
	}

	s.logger.Info("Registered all MCP prompts", zap.Int("count", len(registry.GetPrompts())))
}

// registerResources registers all available MCP resources and resource templates
func (s *Server) registerResources() {
	registry := resources.NewRegistry(s.config, s.metrics, s.defs, s.logger, s.version)

	for _, r := range registry.GetResources() {
		s.mcpServer.AddResource(r.Resource, r.Handler)
		s.logger.Debug("Registered resource", zap.String("uri", r.Resource.URI))
	}

	templateHandler := registry.GetTemplateHandler()
	for _, t := range registry.GetResourceTemplates() {
		s.mcpServer.AddResourceTemplate(t, templateHandler)
		s.logger.Debug("Registered resource template", zap.String("uri_template", t.URITemplate))
	}

	s.logger.Info("Registered all MCP resources",
		zap.Int("static_count", len(registry.GetResources())),
		zap.Int("template_count", len(registry.GetResourceTemplates())),
	)
}

// Start starts the MCP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server")

	// One gateway session per stdio connection
	s.sessionMu.Lock()
	s.sessionID = s.sessions.Open()
	sid := s.sessionID
	s.sessionMu.Unlock()
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.logger.Info("Opened gateway session", zap.String("session_id", sid))

	// Background sweep of idle sessions
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go s.sessions.Run(sweepCtx)

	// Start health HTTP server in background if configured
	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil {
				s.logger.Error("Health server error", zap.Error(err))
			}
		}()
		s.healthServer.SetReady(true)
	}

	defer func() {
		cancelSweep()
		s.sessionMu.Lock()
		s.sessions.Close(s.sessionID)
		s.sessionMu.Unlock()
		s.metrics.LogStats()

		if s.healthServer != nil {
			s.healthServer.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.healthServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("Failed to shutdown health server", zap.Error(err))
			}
		}

		if err := s.apiClient.Close(); err != nil {
			s.logger.Error("Failed to close API client", zap.Error(err))
		}
	}()

	// Serve on stdio; stdout carries the protocol, nothing else may write
	// to it.
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// GetMetrics returns the server's metrics tracker for external access
func (s *Server) GetMetrics() *metrics.Metrics {
	return s.metrics
}

// AuditLog returns the server's audit logger.
func (s *Server) AuditLog() *audit.Logger {
	return s.auditLog
}
