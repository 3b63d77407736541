package registry

import "sync"

// Object groups methods so a host component can be exported as one named
// unit. Methods are declared explicitly with the builder; on Rebuild each
// enabled method becomes a "<object>.<method>" dispatch entry.
type Object struct {
	mu      sync.Mutex
	methods map[string]*objectMethod
	order   []string
}

type objectMethod struct {
	target  *Target
	enabled bool
}

// NewObject creates an empty exportable object.
func NewObject() *Object {
	return &Object{methods: make(map[string]*objectMethod)}
}

// Method declares an invocable method, enabled by default. Declaring the
// same method name again replaces the prior declaration. Returns the object
// so declarations chain.
func (o *Object) Method(name string, kind PayloadKind, h Handler, opts ...TargetOption) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.methods[name]; !exists {
		o.order = append(o.order, name)
	}
	o.methods[name] = &objectMethod{
		target:  NewTarget(name, kind, h, opts...),
		enabled: true,
	}
	return o
}

// SetEnabled toggles a method's presence in the next Rebuild. Reports false
// if the method was never declared.
func (o *Object) SetEnabled(method string, enabled bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.methods[method]
	if !ok {
		return false
	}
	m.enabled = enabled
	return true
}

// enabledTargets returns the targets of currently enabled methods, limited
// to the given selection when non-nil, in declaration order.
func (o *Object) enabledTargets(selection []string) []*Target {
	o.mu.Lock()
	defer o.mu.Unlock()

	selected := func(name string) bool {
		if selection == nil {
			return true
		}
		for _, s := range selection {
			if s == name {
				return true
			}
		}
		return false
	}

	var targets []*Target
	for _, name := range o.order {
		m := o.methods[name]
		if m.enabled && selected(name) {
			targets = append(targets, m.target)
		}
	}
	return targets
}
