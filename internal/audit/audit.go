// Package audit records tool executions for debugging and usage analysis.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/tracing"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
	Tool      string         `json:"tool"`
	SessionID string         `json:"session_id,omitempty"`
	Success   bool           `json:"success"`
	Duration  time.Duration  `json:"duration_ms"`
	ErrorKind apierrors.Kind `json:"error_kind,omitempty"`
	CacheHit  bool           `json:"cache_hit,omitempty"`
	Attempts  int            `json:"attempts,omitempty"`
}

// Logger writes audit entries to zap and keeps a bounded in-memory ring of
// recent entries for the session_context tool.
type Logger struct {
	enabled bool
	logger  *zap.Logger

	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewLogger creates an audit logger.
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	return &Logger{
		enabled:    enabled,
		logger:     logger.Named("audit"),
		entries:    make([]Entry, 0, 256),
		maxEntries: 1000,
	}
}

// Log records an audit entry.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if !l.enabled {
		return
	}

	if info := tracing.FromContext(ctx); info.TraceID != "" {
		entry.TraceID = info.TraceID
		entry.SpanID = info.SpanID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("tool", entry.Tool),
		zap.Bool("success", entry.Success),
		zap.Duration("duration", entry.Duration),
	}
	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.SessionID != "" {
		fields = append(fields, zap.String("session_id", entry.SessionID))
	}
	if entry.ErrorKind != "" {
		fields = append(fields, zap.String("error_kind", string(entry.ErrorKind)))
	}
	if entry.CacheHit {
		fields = append(fields, zap.Bool("cache_hit", true))
	}
	if entry.Attempts > 0 {
		fields = append(fields, zap.Int("attempts", entry.Attempts))
	}

	l.logger.Info("audit", fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
}

// Recent returns up to limit entries, newest first.
func (l *Logger) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	result := make([]Entry, limit)
	copy(result, l.entries[len(l.entries)-limit:])
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Stats aggregates the retained entries.
type Stats struct {
	TotalEntries int                    `json:"total_entries"`
	SuccessRate  float64                `json:"success_rate_pct"`
	ToolUsage    map[string]int         `json:"tool_usage"`
	ErrorCounts  map[apierrors.Kind]int `json:"error_counts"`
	CacheHits    int                    `json:"cache_hits"`
}

// GetStats returns aggregate statistics over the retained entries.
func (l *Logger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalEntries: len(l.entries),
		ToolUsage:    make(map[string]int),
		ErrorCounts:  make(map[apierrors.Kind]int),
	}

	successCount := 0
	for _, entry := range l.entries {
		stats.ToolUsage[entry.Tool]++
		if entry.Success {
			successCount++
		} else if entry.ErrorKind != "" {
			stats.ErrorCounts[entry.ErrorKind]++
		}
		if entry.CacheHit {
			stats.CacheHits++
		}
	}

	if len(l.entries) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(l.entries)) * 100
	}
	return stats
}

// IsEnabled returns whether audit logging is enabled.
func (l *Logger) IsEnabled() bool {
	return l.enabled
}
