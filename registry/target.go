package registry

import (
	"fmt"

	"github.com/napratin/lumos/wire"
)

// PayloadKind selects the wire encoding for a target's return value. It is
// fixed per target at registration time; the codec never infers it from the
// run-time shape of the return value.
type PayloadKind int

const (
	// Value targets return a JSON-encodable value carried inline.
	Value PayloadKind = iota
	// Raw targets return one byte buffer ([]byte) or an ordered list of
	// buffers ([][]byte), sent as binary frames.
	Raw
	// Image targets return a *wire.Image, sent as shape/dtype metadata plus
	// one binary frame.
	Image
)

func (k PayloadKind) String() string {
	switch k {
	case Value:
		return "value"
	case Raw:
		return "raw"
	case Image:
		return "image"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Handler is the invocable behind a target. Params hold the keyword
// arguments of the call, already validated against the declared names.
type Handler func(params map[string]any) (any, error)

// Target is a registered invocable unit reachable by name.
type Target struct {
	name     string
	kind     PayloadKind
	handler  Handler
	required []string
	optional []string
}

// TargetOption configures a target at registration.
type TargetOption func(*Target)

// Params declares the required parameter names of the target. A call missing
// any of them is rejected with a bad-params error.
func Params(names ...string) TargetOption {
	return func(t *Target) { t.required = names }
}

// OptionalParams declares parameter names the target accepts but does not
// require.
func OptionalParams(names ...string) TargetOption {
	return func(t *Target) { t.optional = names }
}

// NewTarget builds a target. Most callers go through Registry.Register or
// Object.Method instead.
func NewTarget(name string, kind PayloadKind, h Handler, opts ...TargetOption) *Target {
	t := &Target{name: name, kind: kind, handler: h}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the name the target is dispatchable under.
func (t *Target) Name() string { return t.name }

// Kind returns the target's payload kind.
func (t *Target) Kind() PayloadKind { return t.kind }

// named returns a copy of the target dispatchable under a different name.
// Used when object methods are flattened into "<object>.<method>" entries.
func (t *Target) named(name string) *Target {
	clone := *t
	clone.name = name
	return &clone
}

// bind validates params against the declared parameter names: every required
// name must be present and no unknown names are accepted.
func (t *Target) bind(params map[string]any) error {
	for _, name := range t.required {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("%w: %s missing required param %q", wire.ErrBadParams, t.name, name)
		}
	}
	for key := range params {
		if !t.accepts(key) {
			return fmt.Errorf("%w: %s got unexpected param %q", wire.ErrBadParams, t.name, key)
		}
	}
	return nil
}

func (t *Target) accepts(key string) bool {
	for _, name := range t.required {
		if name == key {
			return true
		}
	}
	for _, name := range t.optional {
		if name == key {
			return true
		}
	}
	return false
}

// Invoke binds params and calls the handler. A binding mismatch is returned
// as a bad-params error without invoking the handler.
func (t *Target) Invoke(params map[string]any) (any, error) {
	if params == nil {
		params = map[string]any{}
	}
	if err := t.bind(params); err != nil {
		return nil, err
	}
	return t.handler(params)
}
