package engine

import (
	"slices"
	"sync"

	"github.com/born-ml/dnn/internal/status"
)

// Factory creates engines of a single kind.
type Factory interface {
	Kind() Kind
	Count() int
	Create(index int) (*Engine, error)
}

// StaticFactory is a Factory with a fixed engine count and capability table.
type StaticFactory struct {
	kind  Kind
	count func() int
	lazy  bool
	caps  Capabilities
}

// NewFactory returns a factory producing count engines of kind with caps.
// count is evaluated on every Count call so probing factories stay current.
func NewFactory(kind Kind, count func() int, lazy bool, caps Capabilities) *StaticFactory {
	return &StaticFactory{kind: kind, count: count, lazy: lazy, caps: caps}
}

// Kind returns the engine kind produced by the factory.
func (f *StaticFactory) Kind() Kind { return f.kind }

// Count returns the number of engines that can be created.
func (f *StaticFactory) Count() int { return f.count() }

// Create creates the engine at index.
func (f *StaticFactory) Create(index int) (*Engine, error) {
	if n := f.Count(); index < 0 || index >= n {
		return nil, status.Errorf(status.InvalidArgument, "engine: index %d out of range for %s (count %d)", index, f.kind, n)
	}
	return New(f.kind, index, f.lazy, f.caps), nil
}

// Registry maps engine kinds to factories and tracks the engines it created.
// It replaces process-wide factory singletons: callers create one, thread it
// through engine creation and Close it on shutdown.
type Registry struct {
	mu        sync.Mutex
	factories map[Kind]Factory
	live      []*Engine
}

// NewRegistry creates a registry with the given factories.
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{factories: make(map[Kind]Factory)}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register adds or replaces the factory for f.Kind().
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.Kind()] = f
}

// Kinds returns the registered kinds in ascending order.
func (r *Registry) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Count returns the number of engines of kind. Unknown kinds have none.
func (r *Registry) Count(kind Kind) int {
	r.mu.Lock()
	f, ok := r.factories[kind]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return f.Count()
}

// Create creates the engine of kind at index.
func (r *Registry) Create(kind Kind, index int) (*Engine, error) {
	r.mu.Lock()
	f, ok := r.factories[kind]
	r.mu.Unlock()
	if !ok {
		return nil, status.Errorf(status.InvalidArgument, "engine: no factory registered for %s", kind)
	}
	e, err := f.Create(index)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.live = slices.DeleteFunc(r.live, (*Engine).Destroyed)
	r.live = append(r.live, e)
	r.mu.Unlock()
	return e, nil
}

// Close destroys every engine created through the registry that is still
// alive, in creation order. Engines destroyed directly are dropped from the
// registry on the next Create.
func (r *Registry) Close() {
	r.mu.Lock()
	live := r.live
	r.live = nil
	r.mu.Unlock()
	for _, e := range live {
		if !e.Destroyed() {
			e.Destroy()
		}
	}
}
