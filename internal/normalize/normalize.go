// Package normalize flattens Lightdash query results into plain rows.
//
// Lightdash wraps every cell in an envelope:
//
//	{"orders_status": {"value": {"raw": "completed", "formatted": "Completed"}}}
//
// The gateway unwraps each cell to its raw value. The formatted variant is a
// display concern and is discarded here.
package normalize

import (
	"fmt"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
)

// Rows unwraps a slice of enveloped rows. Row order and field set are
// preserved exactly; nothing is filtered, sorted, or deduplicated. A row that
// does not match the envelope shape yields a MalformedUpstreamResponse error,
// which is non-retryable because a retry reproduces the same payload.
func Rows(raw any) ([]map[string]any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, apierrors.NewMalformedUpstreamResponse(
			fmt.Sprintf("expected rows array, got %T", raw))
	}

	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		enveloped, ok := item.(map[string]any)
		if !ok {
			return nil, apierrors.NewMalformedUpstreamResponse(
				fmt.Sprintf("row %d: expected object, got %T", i, item))
		}

		row := make(map[string]any, len(enveloped))
		for field, cell := range enveloped {
			rawValue, err := unwrapCell(cell)
			if err != nil {
				return nil, apierrors.NewMalformedUpstreamResponse(
					fmt.Sprintf("row %d, field %q: %v", i, field, err))
			}
			row[field] = rawValue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// QueryResults normalizes a full runQuery results object in place of its
// "rows" member, leaving the remaining members (metricQuery, fields, etc.)
// untouched. Absent rows are treated as malformed: a run_query success
// envelope always carries them.
func QueryResults(results map[string]any) (map[string]any, error) {
	raw, ok := results["rows"]
	if !ok {
		return nil, apierrors.NewMalformedUpstreamResponse("query results missing rows")
	}

	rows, err := Rows(raw)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(results))
	for k, v := range results {
		out[k] = v
	}
	out["rows"] = rows
	return out, nil
}

// unwrapCell extracts the raw value from one cell envelope.
func unwrapCell(cell any) (any, error) {
	envelope, ok := cell.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected value envelope, got %T", cell)
	}

	value, ok := envelope["value"]
	if !ok {
		return nil, fmt.Errorf("envelope missing value")
	}

	inner, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected value object, got %T", value)
	}

	raw, ok := inner["raw"]
	if !ok {
		return nil, fmt.Errorf("value missing raw")
	}
	return raw, nil
}
