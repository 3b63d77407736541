// Package registry implements the call registry: the set of named invocable
// targets a server dispatches requests against.
//
// Registration is explicit and builder-style; nothing is discovered by
// reflection. The host registers plain callables with Register, or groups of
// methods with NewObject + RegisterObject, then calls Rebuild to publish the
// flat dispatch table. The table is swapped in atomically, so a serving loop
// reading it concurrently never observes a half-updated table.
package registry

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ListCallsName is the built-in helper that enumerates registered call
// names. Helpers always win lookups, so a user entry cannot shadow it.
const ListCallsName = "list-calls"

type exportedObject struct {
	obj       *Object
	selection []string // nil means all declared methods
}

// Registry owns the exported targets and objects and the dispatch table
// built from them.
type Registry struct {
	log *zap.Logger

	mu      sync.Mutex
	targets map[string]*Target
	objects map[string]*exportedObject
	order   []string // registration order of names in targets/objects

	helpers map[string]*Target
	table   atomic.Pointer[map[string]*Target]
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates an empty registry with the built-in helpers installed and an
// empty dispatch table published.
func New(opts ...Option) *Registry {
	r := &Registry{
		log:     zap.NewNop(),
		targets: make(map[string]*Target),
		objects: make(map[string]*exportedObject),
		helpers: make(map[string]*Target),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.helpers[ListCallsName] = NewTarget(ListCallsName, Value, func(map[string]any) (any, error) {
		return r.Names(), nil
	})
	empty := make(map[string]*Target)
	r.table.Store(&empty)
	return r
}

// Register exports a callable under name. Re-registering a name replaces the
// prior entry. The entry becomes dispatchable on the next Rebuild.
func (r *Registry) Register(name string, kind PayloadKind, h Handler, opts ...TargetOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noteName(name)
	r.targets[name] = NewTarget(name, kind, h, opts...)
	r.log.Debug("exported callable", zap.String("name", name), zap.Stringer("kind", kind))
}

// RegisterObject exports an object under name. When methods are listed, only
// those are exposed; otherwise every declared method is. Each enabled method
// becomes a "<name>.<method>" entry on the next Rebuild.
func (r *Registry) RegisterObject(name string, obj *Object, methods ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var selection []string
	if len(methods) > 0 {
		selection = methods
	}
	r.noteName(name)
	r.objects[name] = &exportedObject{obj: obj, selection: selection}
	r.log.Debug("exported object", zap.String("name", name), zap.Strings("methods", methods))
}

// Unregister removes a callable, or an object and all its derived
// "<object>.<method>" entries. An unknown name is a no-op that logs a
// warning.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.objects[name]; ok {
		delete(r.objects, name)
		r.dropName(name)
		r.log.Debug("removed object", zap.String("name", name))
		return
	}
	if _, ok := r.targets[name]; ok {
		delete(r.targets, name)
		r.dropName(name)
		r.log.Debug("removed callable", zap.String("name", name))
		return
	}
	r.log.Warn("unregister of unknown name", zap.String("name", name))
}

// SetEnabled toggles a method of a registered object. The change takes
// effect on the next Rebuild; the object does not need to be re-registered.
func (r *Registry) SetEnabled(object, method string, enabled bool) {
	r.mu.Lock()
	eo, ok := r.objects[object]
	r.mu.Unlock()
	if !ok {
		r.log.Warn("enable/disable on unknown object", zap.String("object", object))
		return
	}
	if !eo.obj.SetEnabled(method, enabled) {
		r.log.Warn("enable/disable on unknown method",
			zap.String("object", object), zap.String("method", method))
	}
}

// Rebuild recomputes the flat dispatch table from the current targets and
// objects and publishes it atomically. It never invokes any target and is
// safe to call repeatedly.
func (r *Registry) Rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := make(map[string]*Target, len(r.targets))
	for _, name := range r.order {
		if t, ok := r.targets[name]; ok {
			table[name] = t
		}
		if eo, ok := r.objects[name]; ok {
			for _, t := range eo.obj.enabledTargets(eo.selection) {
				qualified := name + "." + t.Name()
				table[qualified] = t.named(qualified)
			}
		}
	}
	r.table.Store(&table)

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	r.log.Info("exported calls", zap.String("names", strings.Join(names, ", ")))
}

// Clear removes all targets and objects and publishes an empty table.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.targets = make(map[string]*Target)
	r.objects = make(map[string]*exportedObject)
	r.order = nil
	r.mu.Unlock()
	r.Rebuild()
}

// Lookup resolves a call name, consulting built-in helpers before
// user-exported entries. It reads the published table without locking, so it
// is safe from the serving loop while registrations happen elsewhere.
func (r *Registry) Lookup(name string) (*Target, bool) {
	if t, ok := r.helpers[name]; ok {
		return t, true
	}
	table := *r.table.Load()
	t, ok := table[name]
	return t, ok
}

// Names returns the sorted user-exported call names in the current table.
// Helper names are not included.
func (r *Registry) Names() []string {
	table := *r.table.Load()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// noteName records registration order; re-registration keeps the original
// position.
func (r *Registry) noteName(name string) {
	for _, n := range r.order {
		if n == name {
			return
		}
	}
	r.order = append(r.order, name)
}

func (r *Registry) dropName(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
