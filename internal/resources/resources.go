// Package resources provides MCP resources exposing the gateway's own state:
// server info, redacted configuration, operational metrics and the operation
// catalog.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/config"
	"github.com/datavis-labs/lightdash-mcp-server/internal/metrics"
	"github.com/datavis-labs/lightdash-mcp-server/internal/tools"
)

// Registry holds the resource definitions.
type Registry struct {
	config  *config.Config
	metrics *metrics.Metrics
	defs    []tools.Definition
	logger  *zap.Logger
	version string
}

// NewRegistry creates a resource registry.
func NewRegistry(cfg *config.Config, m *metrics.Metrics, defs []tools.Definition, logger *zap.Logger, version string) *Registry {
	return &Registry{
		config:  cfg,
		metrics: m,
		defs:    defs,
		logger:  logger,
		version: version,
	}
}

// RegisteredResource pairs a resource with its handler.
type RegisteredResource struct {
	Resource *mcp.Resource
	Handler  mcp.ResourceHandler
}

// GetResources returns all registered resources with their handlers
func (r *Registry) GetResources() []RegisteredResource {
	return []RegisteredResource{
		r.aboutResource(),
		r.configResource(),
		r.metricsResource(),
		r.catalogResource(),
	}
}

func (r *Registry) jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		r.logger.Error("Failed to marshal resource", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

// aboutResource returns the about://server resource
func (r *Registry) aboutResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "about://server",
			Name:        "about://server",
			Title:       "About this gateway",
			Description: "Server information and capabilities",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			about := map[string]any{
				"server": map[string]any{
					"name":        "lightdash-mcp-server",
					"description": "MCP gateway mediating access to a Lightdash analytics instance",
					"version":     r.version,
					"upstream":    "Lightdash REST API v1",
				},
				"capabilities": []string{"tools", "prompts", "resources"},
				"tool_count":   len(r.defs),
			}
			return r.jsonResource("about://server", about)
		},
	}
}

// configResource returns the current configuration with secrets masked
func (r *Registry) configResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "config://current",
			Name:        "config://current",
			Title:       "Current Configuration",
			Description: "Active gateway configuration with the API key masked",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			redacted := r.config.Redact()
			payload := map[string]any{
				"service_url":     redacted.ServiceURL,
				"api_key":         redacted.APIKey,
				"project_uuid":    redacted.ProjectUUID,
				"timeout":         redacted.Timeout.String(),
				"max_attempts":    redacted.MaxAttempts,
				"schema_ttl":      redacted.SchemaTTL.String(),
				"listing_ttl":     redacted.ListingTTL.String(),
				"search_ttl":      redacted.SearchTTL.String(),
				"session_idle":    redacted.SessionIdleTimeout.String(),
				"max_sessions":    redacted.MaxSessions,
				"tls_verify":      redacted.TLSVerify,
				"tracing_enabled": redacted.EnableTracing,
			}
			return r.jsonResource("config://current", payload)
		},
	}
}

// metricsResource returns a snapshot of the operational metrics
func (r *Registry) metricsResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "metrics://current",
			Name:        "metrics://current",
			Title:       "Operational Metrics",
			Description: "Upstream request counts, cache hit rates and per-operation usage",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			stats := r.metrics.GetStats()
			payload := map[string]any{
				"upstream": map[string]any{
					"total":      stats.TotalRequests,
					"successful": stats.SuccessfulRequests,
					"failed":     stats.FailedRequests,
					"retried":    stats.RetriedRequests,
				},
				"cache": map[string]any{
					"hits":   stats.CacheHits,
					"misses": stats.CacheMisses,
				},
				"latency": map[string]any{
					"avg": stats.AverageLatency.String(),
					"max": stats.MaxLatency.String(),
				},
				"errors_by_kind":  stats.ErrorsByKind,
				"operation_usage": stats.OperationUsage,
			}
			return r.jsonResource("metrics://current", payload)
		},
	}
}

// catalogResource lists every operation the gateway serves
func (r *Registry) catalogResource() RegisteredResource {
	return RegisteredResource{
		Resource: &mcp.Resource{
			URI:         "catalog://operations",
			Name:        "catalog://operations",
			Title:       "Operation Catalog",
			Description: "Every tool the gateway serves, with cache class and argument names",
			MIMEType:    "application/json",
		},
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			catalog := make([]map[string]any, 0, len(r.defs))
			for _, def := range r.defs {
				op := def.Operation
				args := make([]string, 0, len(op.Args))
				for _, a := range op.Args {
					args = append(args, a.Name)
				}
				entry := map[string]any{
					"name":        op.Name,
					"description": op.Description,
					"cache_class": string(op.Class),
					"arguments":   args,
					"local":       op.Local != nil,
				}
				catalog = append(catalog, entry)
			}
			return r.jsonResource("catalog://operations", map[string]any{"operations": catalog})
		},
	}
}

const chartTemplatePrefix = "template://chart/"

// GetResourceTemplates returns the dynamic resource templates.
func (r *Registry) GetResourceTemplates() []*mcp.ResourceTemplate {
	return []*mcp.ResourceTemplate{
		{
			URITemplate: chartTemplatePrefix + "{chart_type}",
			Name:        "chart-template",
			Title:       "Chart Configuration Template",
			Description: "Example Lightdash chart config for a chart type (big_number, line, bar, scatter, table, pie)",
			MIMEType:    "application/json",
		},
	}
}

// GetTemplateHandler returns the handler resolving template URIs.
func (r *Registry) GetTemplateHandler() mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		if !strings.HasPrefix(uri, chartTemplatePrefix) {
			return nil, fmt.Errorf("unknown resource: %s", uri)
		}
		chartType := strings.TrimPrefix(uri, chartTemplatePrefix)

		template, err := exampleChartTemplate(chartType)
		if err != nil {
			return nil, err
		}
		return r.jsonResource(uri, template)
	}
}

// exampleChartTemplate renders a template with placeholder fields so callers
// can see the shape before they have real field IDs.
func exampleChartTemplate(chartType string) (map[string]any, error) {
	switch chartType {
	case tools.ChartBigNumber:
		return tools.ChartTemplate(chartType, "", []string{"<metric_field_id>"}, "")
	case tools.ChartTable:
		return tools.ChartTemplate(chartType, "", nil, "")
	case tools.ChartPie:
		return tools.ChartTemplate(chartType, "<dimension_field_id>", []string{"<metric_field_id>"}, "")
	case tools.ChartLine, tools.ChartBar, tools.ChartScatter:
		return tools.ChartTemplate(chartType, "<x_field_id>", []string{"<metric_field_id>"}, "")
	default:
		return nil, fmt.Errorf("unknown chart type %q", chartType)
	}
}
