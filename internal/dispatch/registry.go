// Package dispatch routes operation invocations through validation, the
// cache, and the upstream client with retry. It is the single funnel every
// tool call goes through.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/cache"
	"github.com/datavis-labs/lightdash-mcp-server/internal/client"
)

// ArgType identifies the JSON type an argument must carry.
type ArgType string

const (
	ArgString ArgType = "string"
	ArgNumber ArgType = "number"
	ArgBool   ArgType = "boolean"
	ArgObject ArgType = "object"
	ArgArray  ArgType = "array"
)

// ArgSpec declares one argument of an operation.
type ArgSpec struct {
	Name     string
	Type     ArgType
	Required bool
	// Enum restricts a string argument to a fixed set of values.
	Enum []string
}

// Operation is one entry in the dispatch catalog. Exactly one of Build or
// Local must be set: Build produces an upstream request, Local answers
// without touching the upstream.
type Operation struct {
	Name        string
	Description string

	// Class selects the cache TTL. ClassNone disables caching.
	Class cache.Class

	Args []ArgSpec

	// Canon rewrites validated arguments into canonical form before cache
	// key derivation and request building, e.g. case-folding search text so
	// equivalent queries share a cache entry.
	Canon func(args map[string]any) map[string]any

	Build     func(args map[string]any) (*client.Request, error)
	Transform func(raw any) (any, error)
	Local     func(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds the operation catalog.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Register adds an operation to the catalog.
func (r *Registry) Register(op *Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation has no name")
	}
	if (op.Build == nil) == (op.Local == nil) {
		return fmt.Errorf("operation %q must set exactly one of Build or Local", op.Name)
	}
	if op.Local != nil && op.Class != cache.ClassNone && op.Class != "" {
		return fmt.Errorf("operation %q is local and cannot be cached", op.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("operation %q already registered", op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

// MustRegister registers an operation and panics on conflict. Catalog
// definitions are static, so a conflict is a programming error.
func (r *Registry) MustRegister(op *Operation) {
	if err := r.Register(op); err != nil {
		panic(err)
	}
}

// Get returns the named operation.
func (r *Registry) Get(name string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns all operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operations returns all operations sorted by name.
func (r *Registry) Operations() []*Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// ValidateArgs checks an argument map against the operation's specs. The
// check order is fixed (declared specs first, then unknown names sorted), so
// the same bad input always produces the same error.
func ValidateArgs(specs []ArgSpec, args map[string]any) error {
	for _, spec := range specs {
		value, present := args[spec.Name]
		if !present {
			if spec.Required {
				return apierrors.NewMissingArgument(spec.Name)
			}
			continue
		}
		if err := checkType(spec, value); err != nil {
			return err
		}
	}

	known := make(map[string]bool, len(specs))
	for _, spec := range specs {
		known[spec.Name] = true
	}
	var unknown []string
	for name := range args {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return apierrors.NewInvalidArgument(fmt.Sprintf("unknown argument %q", unknown[0]))
	}
	return nil
}

func checkType(spec ArgSpec, value any) error {
	switch spec.Type {
	case ArgString:
		s, ok := value.(string)
		if !ok {
			return apierrors.NewInvalidArgument(fmt.Sprintf("argument %q must be a string", spec.Name))
		}
		if len(spec.Enum) > 0 {
			for _, allowed := range spec.Enum {
				if s == allowed {
					return nil
				}
			}
			return apierrors.NewInvalidArgument(
				fmt.Sprintf("argument %q must be one of %v", spec.Name, spec.Enum))
		}
	case ArgNumber:
		switch value.(type) {
		case float64, int, int64:
		default:
			return apierrors.NewInvalidArgument(fmt.Sprintf("argument %q must be a number", spec.Name))
		}
	case ArgBool:
		if _, ok := value.(bool); !ok {
			return apierrors.NewInvalidArgument(fmt.Sprintf("argument %q must be a boolean", spec.Name))
		}
	case ArgObject:
		if _, ok := value.(map[string]any); !ok {
			return apierrors.NewInvalidArgument(fmt.Sprintf("argument %q must be an object", spec.Name))
		}
	case ArgArray:
		if _, ok := value.([]any); !ok {
			return apierrors.NewInvalidArgument(fmt.Sprintf("argument %q must be an array", spec.Name))
		}
	default:
		return apierrors.NewInvalidArgument(fmt.Sprintf("argument %q has unsupported type %q", spec.Name, spec.Type))
	}
	return nil
}
