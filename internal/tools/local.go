package tools

import (
	"context"

	"github.com/datavis-labs/lightdash-mcp-server/internal/cache"
	"github.com/datavis-labs/lightdash-mcp-server/internal/dispatch"
	"github.com/datavis-labs/lightdash-mcp-server/internal/session"
)

// sessionContext reports the gateway's own state: the caller's session, the
// cache, and the server version. It never touches the upstream.
func sessionContext(deps CatalogDeps) Definition {
	return Definition{
		Operation: &dispatch.Operation{
			Name:        "session_context",
			Description: "Report the current gateway session, cache statistics and server version.",
			Class:       cache.ClassNone,
			Local: func(ctx context.Context, args map[string]any) (any, error) {
				result := map[string]any{
					"version": deps.Version,
				}

				if deps.CacheStats != nil {
					result["cache"] = deps.CacheStats()
				}

				if sid, ok := session.IDFromContext(ctx); ok && deps.SessionInfo != nil {
					info, err := deps.SessionInfo(sid)
					if err != nil {
						return nil, err
					}
					result["session"] = info
				}
				return result, nil
			},
		},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Annotations: LocalAnnotations("Session Context"),
	}
}
