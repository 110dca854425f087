package registry

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/morezero/agent-link/pkg/codec"
)

const logPrefix = "registry:registry"

var commandNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)

// Registry maps command names to handlers. Registration happens during
// startup; after Seal the table is read-only and lookups take no lock.
type Registry struct {
	mu      sync.Mutex
	sealed  atomic.Bool
	entries map[string]*Entry
}

// New creates an empty, unsealed Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a command. It fails once the registry is sealed, for a
// name already taken, and for an input schema that does not compile.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%s - handler for %q is nil", logPrefix, desc.Name)
	}
	if !commandNamePattern.MatchString(desc.Name) {
		return InvalidArgument("invalid command name %q", desc.Name)
	}
	switch desc.Context {
	case "":
		desc.Context = ContextMain
	case ContextMain, ContextAny:
	default:
		return InvalidArgument("command %s: unknown execution context %q", desc.Name, desc.Context)
	}

	schema, err := compileSchema(desc.InputSchema)
	if err != nil {
		return InvalidArgument("command %s: %v", desc.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return NewCommandError(codec.CodeRegistryClosed, fmt.Sprintf("cannot register %s: registry is sealed", desc.Name))
	}
	if _, exists := r.entries[desc.Name]; exists {
		return InvalidArgument("command %s already registered", desc.Name)
	}
	r.entries[desc.Name] = &Entry{Descriptor: desc, handler: handler, schema: schema}
	slog.Debug(fmt.Sprintf("%s - registered %s (context=%s idempotent=%t)", logPrefix, desc.Name, desc.Context, desc.Idempotent))
	return nil
}

// Seal freezes the table. Further Register calls fail with REGISTRY_CLOSED.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Swap(true) {
		return
	}
	slog.Info(fmt.Sprintf("%s - sealed with %d commands", logPrefix, len(r.entries)))
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Resolve returns the entry registered under name. Matching is exact
// and case-sensitive.
func (r *Registry) Resolve(name string) (*Entry, error) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	e, ok := r.entries[name]
	if !ok {
		return nil, NewCommandError(codec.CodeUnknownCommand, fmt.Sprintf("unknown command: %s", name))
	}
	return e, nil
}

// Describe returns every descriptor, sorted by name.
func (r *Registry) Describe() []Descriptor {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return len(r.entries)
}
