// Package prompts provides pre-built prompts for common Lightdash analytics
// workflows.
package prompts

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// PromptDefinition represents a prompt with its metadata and handler
type PromptDefinition struct {
	// Prompt is the MCP prompt metadata
	Prompt *mcp.Prompt
	// Handler is the function that generates the prompt content
	Handler mcp.PromptHandler
}

// Registry holds all registered prompts
type Registry struct {
	logger  *zap.Logger
	prompts []*PromptDefinition
}

// NewRegistry creates a new prompt registry with all available prompts
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger: logger,
	}
	r.registerPrompts()
	return r
}

// GetPrompts returns all registered prompt definitions
func (r *Registry) GetPrompts() []*PromptDefinition {
	return r.prompts
}

func (r *Registry) registerPrompts() {
	r.prompts = []*PromptDefinition{
		r.exploreDataPrompt(),
		r.buildChartPrompt(),
		r.analyzeMetricPrompt(),
		r.auditProjectPrompt(),
	}
}

// Helper to create a prompt result with user role
func createPromptResult(description, content string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: content,
				},
			},
		},
	}
}

// getStringArg safely extracts a string argument with a default value
func getStringArg(args map[string]string, key, defaultVal string) string {
	if val, ok := args[key]; ok && val != "" {
		return val
	}
	return defaultVal
}

// exploreDataPrompt walks through discovering what data a project holds
func (r *Registry) exploreDataPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "explore_data",
			Title:       "Explore Project Data",
			Description: "Guide through discovering the tables, fields and metrics available in a Lightdash project",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "topic",
					Description: "Topic of interest to search for (e.g. 'revenue', 'churn')",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			topic := getStringArg(req.Params.Arguments, "topic", "")

			content := `Let's find out what data this Lightdash project holds.

1. Run: list_projects to pick a project (skip if a default project is configured)
2. Run: list_explores to see the available tables
3. For an interesting explore, run: get_explore with its explore_id to see every dimension and metric
4. Run: get_custom_metrics to see metrics analysts have defined on top of the models`

			if topic != "" {
				content += fmt.Sprintf(`

Since you're interested in %q, start instead with:
- search_catalog with search %q to jump straight to matching tables and fields`, topic, topic)
			}

			content += `

Once you know the field IDs, use run_query to pull actual data.`

			return createPromptResult("Explore project data workflow", content), nil
		},
	}
}

// buildChartPrompt walks from a question to a finished chart config
func (r *Registry) buildChartPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "build_chart",
			Title:       "Build a Chart",
			Description: "Guide from an analytics question to a query and a chart configuration",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "question",
					Description: "The question to answer (e.g. 'revenue by month for the last year')",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			question := getStringArg(req.Params.Arguments, "question", "your question")

			content := fmt.Sprintf(`Let's turn %q into a chart.

1. Run: list_explores and pick the explore that covers the question
2. Run: get_explore with that explore_id and note the dimension and metric field IDs you need
3. Run: run_query with those fields (add filters and sorts as the question requires)
4. Run: recommend_visualization with the query's dimensions, metrics and row count
5. Run: generate_chart_template with the recommended chart type and the same fields

The template output matches a Lightdash saved chart's chartConfig, ready to use.`, question)

			return createPromptResult("Question to chart workflow", content), nil
		},
	}
}

// analyzeMetricPrompt digs into one metric's definition and behavior
func (r *Registry) analyzeMetricPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "analyze_metric",
			Title:       "Analyze a Metric",
			Description: "Guide through understanding how a metric is defined and how it trends",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "metric",
					Description: "Metric name or field ID to analyze",
					Required:    true,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			metric := getStringArg(req.Params.Arguments, "metric", "")
			if metric == "" {
				return nil, fmt.Errorf("metric argument is required")
			}

			content := fmt.Sprintf(`Let's analyze the metric %q.

1. Run: search_catalog with search %q to locate the metric and its explore
2. Run: get_explore for that explore to read the metric's type and description
3. Run: get_custom_metrics to check whether it is a custom definition (and see its SQL)
4. Run: run_query with the metric alone for its current value
5. Run: run_query again with a date dimension to see its trend over time

Compare the trend against list_charts output: an existing saved chart may
already track this metric.`, metric, metric)

			return createPromptResult("Metric analysis workflow", content), nil
		},
	}
}

// auditProjectPrompt reviews the content health of a project
func (r *Registry) auditProjectPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "audit_project",
			Title:       "Audit Project Content",
			Description: "Guide through reviewing a project's spaces, charts and dashboards for staleness",
			Arguments:   []*mcp.PromptArgument{},
		},
		Handler: func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			content := `Let's review the content of this project.

1. Run: list_spaces to map how content is organized
2. Run: list_charts and note charts not updated in months
3. Run: list_dashboards and check each dashboard still has an owner
4. Run: list_explores and compare: are there explores no chart uses at all?

Summarize: stale charts, empty spaces, unused explores, and dashboards whose
underlying explores changed recently.`

			return createPromptResult("Project content audit workflow", content), nil
		},
	}
}
