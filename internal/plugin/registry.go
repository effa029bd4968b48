package plugin

// Registry is the ordered, immutable list of declared plugins.
type Registry struct {
	plugins []Plugin
}

// NewRegistry validates plugins and freezes them in the given order. Names
// must be unique and non-empty, hook types known and callbacks non-nil.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	seen := make(map[string]struct{}, len(plugins))
	frozen := make([]Plugin, 0, len(plugins))

	for i, p := range plugins {
		switch {
		case p.Name == "":
			return nil, &RegistrationError{Index: i, Reason: "name is required"}
		case p.Callback == nil:
			return nil, &RegistrationError{Index: i, Name: p.Name, Reason: "callback is required"}
		case !p.Type.Valid():
			return nil, &RegistrationError{Index: i, Name: p.Name, Reason: "unknown hook type " + string(p.Type)}
		}
		if _, dup := seen[p.Name]; dup {
			return nil, &RegistrationError{Index: i, Name: p.Name, Reason: "duplicate name"}
		}
		seen[p.Name] = struct{}{}
		frozen = append(frozen, p)
	}

	return &Registry{plugins: frozen}, nil
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.plugins)
}

// ForHook returns, in registration order, the plugins subscribed to t. The
// returned slice is a copy.
func (r *Registry) ForHook(t HookType) []Plugin {
	if r == nil {
		return nil
	}
	var out []Plugin
	for _, p := range r.plugins {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// Names returns the registered plugin names in order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name
	}
	return names
}
