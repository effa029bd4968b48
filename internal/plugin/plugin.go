package plugin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/sealed"
)

// HookType names the pipeline phase a plugin subscribes to.
type HookType string

const (
	// HookProcessOpenClientResponse runs after a successful ingress response
	// has been unsealed.
	HookProcessOpenClientResponse HookType = "process-open-client-response"
)

// Valid reports whether t is a known hook type.
func (t HookType) Valid() bool {
	return t == HookProcessOpenClientResponse
}

// Context is the input handed to a plugin callback.
type Context struct {
	// Event is the unsealed identification result.
	Event sealed.Event
	// HTTPResponse is this plugin's private copy of the ingress response.
	HTTPResponse *http.Response
}

// Callback is the plugin entry point.
type Callback func(ctx context.Context, pc *Context) error

// Plugin is a named hook subscription.
type Plugin struct {
	Name     string
	Type     HookType
	Callback Callback
}

// RegistrationError describes an invalid plugin declaration.
type RegistrationError struct {
	Index  int
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("plugin #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("plugin %q: %s", e.Name, e.Reason)
}
