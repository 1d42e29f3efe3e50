package tools

import (
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/cases"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/cache"
	"github.com/datavis-labs/lightdash-mcp-server/internal/client"
	"github.com/datavis-labs/lightdash-mcp-server/internal/dispatch"
	"github.com/datavis-labs/lightdash-mcp-server/internal/normalize"
)

// Definition pairs a dispatch operation with its MCP tool surface.
type Definition struct {
	Operation   *dispatch.Operation
	InputSchema map[string]any
	Annotations *mcp.ToolAnnotations
}

// Tool builds the MCP tool descriptor for this definition.
func (d Definition) Tool() *mcp.Tool {
	return &mcp.Tool{
		Name:        d.Operation.Name,
		Description: d.Operation.Description,
		InputSchema: d.InputSchema,
		Annotations: d.Annotations,
	}
}

// CatalogDeps carries what the local tools need beyond the upstream client.
type CatalogDeps struct {
	// DefaultProject is used when a tool call omits project_uuid. Empty
	// means the argument is required.
	DefaultProject string

	SessionInfo func(sessionID string) (map[string]any, error)
	CacheStats  func() map[string]any
	Version     string
}

// NewCatalog returns every tool definition the gateway serves.
func NewCatalog(deps CatalogDeps) []Definition {
	defs := []Definition{
		listProjects(),
		getProject(deps),
		listSpaces(deps),
		listExplores(deps),
		getExplore(deps),
		getCustomMetrics(deps),
		searchCatalog(deps),
		listCharts(deps),
		listDashboards(deps),
		runQuery(deps),
		recommendVisualization(),
		generateChartTemplate(),
		healthCheck(),
		sessionContext(deps),
	}
	return defs
}

// Register adds every catalog operation to the dispatch registry.
func Register(registry *dispatch.Registry, defs []Definition) error {
	for _, def := range defs {
		if err := registry.Register(def.Operation); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// resolveProject returns the project UUID from the arguments, falling back
// to the configured default.
func resolveProject(args map[string]any, defaultProject string) (string, error) {
	if uuid := stringArg(args, "project_uuid"); uuid != "" {
		return uuid, nil
	}
	if defaultProject != "" {
		return defaultProject, nil
	}
	return "", apierrors.NewMissingArgument("project_uuid")
}

func projectUUIDProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Lightdash project UUID. Optional when the server is configured with a default project.",
	}
}

func listProjects() Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "list_projects",
			Description: "List all Lightdash projects the API key can access, with their UUIDs and names.",
			Class:       cache.ClassListing,
			Build: func(args map[string]any) (*client.Request, error) {
				return &client.Request{
					Method: http.MethodGet,
					Path:   "/api/v1/org/projects",
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Annotations: ReadOnlyAnnotations("List Projects"),
	}
}

func getProject(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "get_project",
			Description: "Get details of one Lightdash project: warehouse connection type, dbt settings and organization.",
			Class:       cache.ClassListing,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s", project),
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
			},
		},
		Annotations: ReadOnlyAnnotations("Get Project"),
	}
}

func listSpaces(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "list_spaces",
			Description: "List the spaces of a project. Spaces group saved charts and dashboards.",
			Class:       cache.ClassListing,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s/spaces", project),
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
			},
		},
		Annotations: ReadOnlyAnnotations("List Spaces"),
	}
}

func listExplores(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "list_explores",
			Description: "List the explores (dbt model tables) of a project with their labels and tags. Use get_explore for field-level detail.",
			Class:       cache.ClassSchema,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s/explores", project),
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
			},
		},
		Annotations: ReadOnlyAnnotations("List Explores"),
	}
}

func getExplore(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "get_explore",
			Description: "Get the full schema of one explore: dimensions, metrics, joined tables and field descriptions. Call this before run_query to learn the valid field IDs.",
			Class:       cache.ClassSchema,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
				{Name: "explore_id", Type: dispatch.ArgString, Required: true},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s/explores/%s", project, stringArg(args, "explore_id")),
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
				"explore_id": map[string]any{
					"type":        "string",
					"description": "Explore name as returned by list_explores (e.g. 'orders').",
				},
			},
			"required": []string{"explore_id"},
		},
		Annotations: ReadOnlyAnnotations("Get Explore Schema"),
	}
}

func getCustomMetrics(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "get_custom_metrics",
			Description: "List the custom metrics defined in a project, with their SQL and the explore they extend.",
			Class:       cache.ClassSchema,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s/custom-metrics", project),
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
			},
		},
		Annotations: ReadOnlyAnnotations("Get Custom Metrics"),
	}
}

func searchCatalog(deps CatalogDeps) Definition {
	folder := cases.Fold()

	return Definition{
		Operation: &dispatch.Operation{
			Name:        "search_catalog",
			Description: "Search the data catalog of a project for tables and fields matching a text query.",
			Class:       cache.ClassSearch,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
				{Name: "search", Type: dispatch.ArgString, Required: true},
			},
			// Case-fold the query so searches differing only in case share
			// a cache entry and an upstream call.
			Canon: func(args map[string]any) map[string]any {
				canon := make(map[string]any, len(args))
				for k, v := range args {
					canon[k] = v
				}
				canon["search"] = folder.String(stringArg(args, "search"))
				return canon
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s/dataCatalog", project),
					Query:  map[string]string{"search": stringArg(args, "search")},
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
				"search": map[string]any{
					"type":        "string",
					"description": "Free-text search over table and field names, labels and descriptions.",
				},
			},
			"required": []string{"search"},
		},
		Annotations: ReadOnlyAnnotations("Search Data Catalog"),
	}
}

func listCharts(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "list_charts",
			Description: "List the saved charts of a project with their space and last-update time.",
			Class:       cache.ClassListing,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s/charts", project),
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
			},
		},
		Annotations: ReadOnlyAnnotations("List Saved Charts"),
	}
}

func listDashboards(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "list_dashboards",
			Description: "List the dashboards of a project.",
			Class:       cache.ClassListing,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}
				return &client.Request{
					Method: http.MethodGet,
					Path:   fmt.Sprintf("/api/v1/projects/%s/dashboards", project),
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
			},
		},
		Annotations: ReadOnlyAnnotations("List Dashboards"),
	}
}

func runQuery(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "run_query",
			Description: "Run a metric query against an explore and return flattened result rows. Field IDs come from get_explore; results are never cached.",
			Class:       cache.ClassNone,
			Args: []dispatch.ArgSpec{
				{Name: "project_uuid", Type: dispatch.ArgString, Required: deps.DefaultProject == ""},
				{Name: "explore_id", Type: dispatch.ArgString, Required: true},
				{Name: "metrics", Type: dispatch.ArgArray},
				{Name: "dimensions", Type: dispatch.ArgArray},
				{Name: "filters", Type: dispatch.ArgObject},
				{Name: "sorts", Type: dispatch.ArgArray},
				{Name: "limit", Type: dispatch.ArgNumber},
			},
			Build: func(args map[string]any) (*client.Request, error) {
				project, err := resolveProject(args, deps.DefaultProject)
				if err != nil {
					return nil, err
				}

				body := map[string]any{
					"exploreName":       stringArg(args, "explore_id"),
					"dimensions":        arrayOrEmpty(args, "dimensions"),
					"metrics":           arrayOrEmpty(args, "metrics"),
					"filters":           objectOrEmpty(args, "filters"),
					"sorts":             arrayOrEmpty(args, "sorts"),
					"limit":             limitOrDefault(args, 500),
					"tableCalculations": []any{},
				}
				return &client.Request{
					Method: http.MethodPost,
					Path: fmt.Sprintf("/api/v1/projects/%s/explores/%s/runQuery",
						project, stringArg(args, "explore_id")),
					Body: body,
				}, nil
			},
			Transform: func(raw any) (any, error) {
				results, ok := raw.(map[string]any)
				if !ok {
					return nil, apierrors.NewMalformedUpstreamResponse("query results must be an object")
				}
				return normalize.QueryResults(results)
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project_uuid": projectUUIDProperty(),
				"explore_id": map[string]any{
					"type":        "string",
					"description": "Explore to query (e.g. 'orders').",
				},
				"metrics": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Metric field IDs, e.g. 'orders_total_revenue'.",
				},
				"dimensions": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Dimension field IDs, e.g. 'orders_status'.",
				},
				"filters": map[string]any{
					"type":        "object",
					"description": "Lightdash filter tree ({\"dimensions\": {...}, \"metrics\": {...}}).",
				},
				"sorts": map[string]any{
					"type":        "array",
					"description": "Sort specs: [{\"fieldId\": \"orders_total_revenue\", \"descending\": true}].",
				},
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum rows to return (default 500).",
				},
			},
			"required": []string{"explore_id"},
		},
		Annotations: QueryAnnotations("Run Metric Query"),
	}
}

func healthCheck() Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "health_check",
			Description: "Check connectivity and authentication against the Lightdash instance.",
			Class:       cache.ClassNone,
			Build: func(args map[string]any) (*client.Request, error) {
				return &client.Request{
					Method: http.MethodGet,
					Path:   "/api/v1/health",
				}, nil
			},
		},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Annotations: ReadOnlyAnnotations("Health Check"),
	}
}

func arrayOrEmpty(args map[string]any, key string) []any {
	if v, ok := args[key].([]any); ok {
		return v
	}
	return []any{}
}

func objectOrEmpty(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func limitOrDefault(args map[string]any, fallback int) int {
	switch v := args["limit"].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}
