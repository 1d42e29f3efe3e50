package tools

import (
	"context"
	"fmt"

	"github.com/datavis-labs/lightdash-mcp-server/internal/cache"
	"github.com/datavis-labs/lightdash-mcp-server/internal/dispatch"
)

// Chart types the recommendation and template tools understand. These match
// Lightdash's saved chart types.
const (
	ChartBigNumber = "big_number"
	ChartLine      = "line"
	ChartBar       = "bar"
	ChartScatter   = "scatter"
	ChartTable     = "table"
	ChartPie       = "pie"
)

var chartTypes = []string{ChartBigNumber, ChartLine, ChartBar, ChartScatter, ChartTable, ChartPie}

// temporal dimension types as reported by explore schemas
var temporalTypes = map[string]bool{
	"date":      true,
	"timestamp": true,
}

// FieldRef describes one query field for the recommendation heuristic.
type FieldRef struct {
	FieldID string
	Type    string
}

// Recommendation is the output of the visualization heuristic.
type Recommendation struct {
	ChartType   string   `json:"chart_type"`
	Reason      string   `json:"reason"`
	XField      string   `json:"x_field,omitempty"`
	YFields     []string `json:"y_fields,omitempty"`
	GroupField  string   `json:"group_field,omitempty"`
	Alternative string   `json:"alternative,omitempty"`
}

// Recommend picks a chart type from the shape of a query: how many
// dimensions and metrics it has, whether a dimension is temporal, and how
// many rows came back.
func Recommend(dimensions []FieldRef, metrics []string, rowCount int) Recommendation {
	switch {
	case len(dimensions) == 0 && len(metrics) >= 1:
		return Recommendation{
			ChartType: ChartBigNumber,
			Reason:    "no dimensions: a single aggregate value reads best as a big number",
			YFields:   metrics,
		}

	case len(dimensions) == 1 && temporalTypes[dimensions[0].Type]:
		return Recommendation{
			ChartType:   ChartLine,
			Reason:      "one time dimension: a line chart shows the trend",
			XField:      dimensions[0].FieldID,
			YFields:     metrics,
			Alternative: ChartBar,
		}

	case len(dimensions) == 1 && len(metrics) >= 1:
		rec := Recommendation{
			ChartType: ChartBar,
			Reason:    "one categorical dimension: bars compare categories",
			XField:    dimensions[0].FieldID,
			YFields:   metrics,
		}
		if rowCount > 30 {
			rec.ChartType = ChartTable
			rec.Reason = fmt.Sprintf("one categorical dimension with %d rows: too many bars to read, use a table", rowCount)
			rec.Alternative = ChartBar
		}
		return rec

	case len(dimensions) == 2 && len(metrics) == 1:
		xField := dimensions[0]
		groupField := dimensions[1]
		// Prefer the temporal dimension on the x axis.
		if !temporalTypes[xField.Type] && temporalTypes[groupField.Type] {
			xField, groupField = groupField, xField
		}
		chartType := ChartBar
		reason := "two dimensions and one metric: grouped bars"
		if temporalTypes[xField.Type] {
			chartType = ChartLine
			reason = "time dimension plus a grouping dimension: one line per group"
		}
		return Recommendation{
			ChartType:  chartType,
			Reason:     reason,
			XField:     xField.FieldID,
			YFields:    metrics,
			GroupField: groupField.FieldID,
		}

	case len(dimensions) == 0 && len(metrics) == 0:
		return Recommendation{
			ChartType: ChartTable,
			Reason:    "empty query shape: nothing to plot",
		}

	default:
		return Recommendation{
			ChartType: ChartTable,
			Reason:    fmt.Sprintf("%d dimensions and %d metrics: too many series for a chart", len(dimensions), len(metrics)),
		}
	}
}

// ChartTemplate builds a Lightdash chart config for the given type and
// fields. The output matches the chartConfig member of a saved chart.
func ChartTemplate(chartType, xField string, yFields []string, groupField string) (map[string]any, error) {
	if yFields == nil {
		yFields = []string{}
	}

	switch chartType {
	case ChartBigNumber:
		if len(yFields) == 0 {
			return nil, fmt.Errorf("big_number requires at least one metric")
		}
		return map[string]any{
			"chartType": ChartBigNumber,
			"chartConfig": map[string]any{
				"selectedField": yFields[0],
				"label":         "",
			},
		}, nil

	case ChartTable:
		return map[string]any{
			"chartType": ChartTable,
			"chartConfig": map[string]any{
				"showColumnCalculation": false,
				"showRowCalculation":    false,
			},
		}, nil

	case ChartPie:
		if xField == "" || len(yFields) == 0 {
			return nil, fmt.Errorf("pie requires one dimension and one metric")
		}
		return map[string]any{
			"chartType": ChartPie,
			"chartConfig": map[string]any{
				"groupFieldIds": []string{xField},
				"metricId":      yFields[0],
				"isDonut":       false,
			},
		}, nil

	case ChartLine, ChartBar, ChartScatter:
		if xField == "" {
			return nil, fmt.Errorf("%s requires an x field", chartType)
		}
		layout := map[string]any{
			"xField":   xField,
			"yField":   yFields,
			"flipAxes": false,
		}
		cfg := map[string]any{
			"chartType": chartType,
			"chartConfig": map[string]any{
				"layout": layout,
				"eChartsConfig": map[string]any{
					"series": seriesFor(chartType, xField, yFields),
				},
			},
		}
		if groupField != "" {
			layout["groupField"] = groupField
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown chart type %q", chartType)
	}
}

func seriesFor(chartType, xField string, yFields []string) []map[string]any {
	series := make([]map[string]any, 0, len(yFields))
	for _, y := range yFields {
		series = append(series, map[string]any{
			"type": chartType,
			"encode": map[string]any{
				"xRef": map[string]any{"field": xField},
				"yRef": map[string]any{"field": y},
			},
		})
	}
	return series
}

func recommendVisualization() Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "recommend_visualization",
			Description: "Recommend a chart type from a query's shape: its dimensions (with types), metrics and row count.",
			Class:       cache.ClassNone,
			Args: []dispatch.ArgSpec{
				{Name: "dimensions", Type: dispatch.ArgArray},
				{Name: "metrics", Type: dispatch.ArgArray},
				{Name: "row_count", Type: dispatch.ArgNumber},
			},
			Local: func(ctx context.Context, args map[string]any) (any, error) {
				dims := parseFieldRefs(arrayOrEmpty(args, "dimensions"))
				metrics := parseStrings(arrayOrEmpty(args, "metrics"))
				rowCount := 0
				if n, ok := args["row_count"].(float64); ok {
					rowCount = int(n)
				}
				return Recommend(dims, metrics, rowCount), nil
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dimensions": map[string]any{
					"type":        "array",
					"description": "Query dimensions as objects: [{\"field_id\": \"orders_created_at\", \"type\": \"date\"}]. Plain strings are treated as categorical.",
				},
				"metrics": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Metric field IDs in the query.",
				},
				"row_count": map[string]any{
					"type":        "number",
					"description": "Number of result rows, if known.",
				},
			},
		},
		Annotations: LocalAnnotations("Recommend Visualization"),
	}
}

func generateChartTemplate() Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "generate_chart_template",
			Description: "Generate a Lightdash chart config for a chart type and set of fields, ready to paste into a saved chart.",
			Class:       cache.ClassNone,
			Args: []dispatch.ArgSpec{
				{Name: "chart_type", Type: dispatch.ArgString, Required: true, Enum: chartTypes},
				{Name: "x_field", Type: dispatch.ArgString},
				{Name: "y_fields", Type: dispatch.ArgArray},
				{Name: "group_field", Type: dispatch.ArgString},
			},
			Local: func(ctx context.Context, args map[string]any) (any, error) {
				return ChartTemplate(
					stringArg(args, "chart_type"),
					stringArg(args, "x_field"),
					parseStrings(arrayOrEmpty(args, "y_fields")),
					stringArg(args, "group_field"),
				)
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"chart_type": map[string]any{
					"type":        "string",
					"enum":        chartTypes,
					"description": "Chart type to generate.",
				},
				"x_field": map[string]any{
					"type":        "string",
					"description": "Dimension for the x axis (cartesian and pie charts).",
				},
				"y_fields": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Metrics for the y axis.",
				},
				"group_field": map[string]any{
					"type":        "string",
					"description": "Optional dimension to split series by.",
				},
			},
			"required": []string{"chart_type"},
		},
		Annotations: LocalAnnotations("Generate Chart Template"),
	}
}

func parseFieldRefs(raw []any) []FieldRef {
	refs := make([]FieldRef, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			refs = append(refs, FieldRef{FieldID: v, Type: "string"})
		case map[string]any:
			ref := FieldRef{
				FieldID: stringArg(v, "field_id"),
				Type:    stringArg(v, "type"),
			}
			if ref.Type == "" {
				ref.Type = "string"
			}
			refs = append(refs, ref)
		}
	}
	return refs
}

func parseStrings(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
