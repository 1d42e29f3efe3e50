package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/cache"
	"github.com/datavis-labs/lightdash-mcp-server/internal/client"
	"github.com/datavis-labs/lightdash-mcp-server/internal/metrics"
	"github.com/datavis-labs/lightdash-mcp-server/internal/session"
	"github.com/datavis-labs/lightdash-mcp-server/internal/tracing"
)

// Caller executes one upstream request. *client.Client satisfies it; tests
// substitute fakes.
type Caller interface {
	Call(ctx context.Context, req *client.Request) (any, error)
}

// Options tunes the retry schedule.
type Options struct {
	// MaxAttempts counts the first try, so 3 means at most two retries.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Sleep waits between attempts. Defaults to a context-aware timer;
	// tests inject an instant version and record the requested delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the production retry schedule.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  8 * time.Second,
	}
}

// Dispatcher is the single path every operation invocation takes: argument
// validation, session touch, cache lookup, upstream call with retry,
// normalization, write-through.
type Dispatcher struct {
	registry *Registry
	caller   Caller
	store    *cache.Store
	ttl      cache.TTLPolicy
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options
}

// New creates a dispatcher. The metrics tracker may be nil.
func New(registry *Registry, caller Caller, store *cache.Store, ttl cache.TTLPolicy,
	sessions *session.Manager, m *metrics.Metrics, logger *zap.Logger, opts Options) *Dispatcher {

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Dispatcher{
		registry: registry,
		caller:   caller,
		store:    store,
		ttl:      ttl,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// Invoke runs one operation. A non-empty sessionID must name a live session;
// invoking marks it active. Validation failures and cache hits never reach
// the upstream.
func (d *Dispatcher) Invoke(ctx context.Context, operation, sessionID string, args map[string]any) (any, error) {
	op, ok := d.registry.Get(operation)
	if !ok {
		return nil, apierrors.NewInvalidArgument(fmt.Sprintf("unknown operation %q", operation))
	}

	if sessionID != "" && d.sessions != nil {
		if err := d.sessions.Touch(sessionID); err != nil {
			return nil, apierrors.NewSessionNotFound(sessionID)
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArgs(op.Args, args); err != nil {
		return nil, err
	}
	if op.Canon != nil {
		args = op.Canon(args)
	}

	if op.Local != nil {
		return op.Local(ctx, args)
	}

	ctx, span := tracing.OperationSpan(ctx, operation)
	defer span.End()

	ttl := d.ttl.For(op.Class)
	var key string
	if ttl > 0 && d.store != nil {
		key = cache.Key(operation, args)
		if value, hit := d.store.Get(key); hit {
			tracing.SetCacheHit(span, true)
			if d.metrics != nil {
				d.metrics.RecordCacheHit(string(op.Class))
			}
			d.logger.Debug("Cache hit", zap.String("operation", operation))
			return value, nil
		}
		tracing.SetCacheHit(span, false)
		if d.metrics != nil {
			d.metrics.RecordCacheMiss(string(op.Class))
		}
	}

	req, err := op.Build(args)
	if err != nil {
		return nil, err
	}

	raw, attempts, err := d.callWithRetry(ctx, operation, req)
	tracing.SetAttempts(span, attempts)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	result := raw
	if op.Transform != nil {
		result, err = op.Transform(raw)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
	}

	if key != "" {
		d.store.Set(key, result, ttl)
	}
	return result, nil
}

// callWithRetry makes up to MaxAttempts upstream calls, sleeping the backoff
// schedule between attempts. Only errors the taxonomy marks retryable are
// retried; everything else surfaces after the first attempt.
func (d *Dispatcher) callWithRetry(ctx context.Context, operation string, req *client.Request) (any, int, error) {
	var lastErr error

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		start := time.Now()
		raw, err := d.caller.Call(ctx, req)
		latency := time.Since(start)

		if err == nil {
			if d.metrics != nil {
				d.metrics.RecordUpstreamRequest(true, latency, "")
			}
			return raw, attempt, nil
		}

		if d.metrics != nil {
			d.metrics.RecordUpstreamRequest(false, latency, string(apierrors.KindOf(err)))
		}
		lastErr = err

		if !apierrors.IsRetryable(err) || attempt == d.opts.MaxAttempts {
			return nil, attempt, err
		}

		wait := Backoff(attempt, d.opts.BackoffBase, d.opts.BackoffMax)
		d.logger.Debug("Retrying upstream call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if d.metrics != nil {
			d.metrics.RecordRetry()
		}
		if sleepErr := d.opts.Sleep(ctx, wait); sleepErr != nil {
			return nil, attempt, sleepErr
		}
	}
	return nil, d.opts.MaxAttempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
