package agentAuth

import (
	"fmt"
	"strings"
	"sync"
)

// AuthHandler describes one external sign-in connection. A non-empty
// OBOConnectionName makes the handler's tokens exchangeable; Scopes are the
// default exchange scopes.
type AuthHandler struct {
	ID                string   `yaml:"id"`
	ConnectionName    string   `yaml:"connection"`
	OBOConnectionName string   `yaml:"oboConnection,omitempty"`
	Title             string   `yaml:"title,omitempty"`
	Text              string   `yaml:"text,omitempty"`
	Scopes            []string `yaml:"scopes,omitempty"`
}

// Exchangeable reports whether the handler is configured for on-behalf-of exchange.
func (h AuthHandler) Exchangeable() bool {
	return h.OBOConnectionName != ""
}

func (h AuthHandler) validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidHandler)
	}
	if strings.Contains(h.ID, "/") {
		return fmt.Errorf("%w: id %q cannot contain '/'", ErrInvalidHandler, h.ID)
	}
	if strings.TrimSpace(h.ConnectionName) == "" {
		return fmt.Errorf("%w: handler %q needs a connection name", ErrInvalidHandler, h.ID)
	}
	return nil
}

func (h AuthHandler) clone() AuthHandler {
	out := h
	if h.Scopes != nil {
		out.Scopes = append([]string(nil), h.Scopes...)
	}
	return out
}

type registeredHandler struct {
	handler AuthHandler
	driver  OAuthFlow
}

// HandlerRegistry maps handler ids to their definition and OAuth driver.
// Registration order is preserved and used when searching for an active flow.
type HandlerRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*registeredHandler
	order  []string
	frozen bool
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		byID: make(map[string]*registeredHandler),
	}
}

// Register adds a handler and its driver. Must be called before
// [HandlerRegistry.Freeze].
func (r *HandlerRegistry) Register(h AuthHandler, driver OAuthFlow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if err := h.validate(); err != nil {
		return err
	}
	if driver == nil {
		return fmt.Errorf("%w: handler %q needs a driver", ErrInvalidHandler, h.ID)
	}
	if _, exists := r.byID[h.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, h.ID)
	}

	r.byID[h.ID] = &registeredHandler{handler: h.clone(), driver: driver}
	r.order = append(r.order, h.ID)
	return nil
}

// Freeze prevents further registrations.
func (r *HandlerRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns the handler for id. An empty id resolves to the only
// registered handler.
func (r *HandlerRegistry) Resolve(id string) (AuthHandler, OAuthFlow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" {
		switch len(r.order) {
		case 0:
			return AuthHandler{}, nil, ErrHandlerNotFound
		case 1:
			id = r.order[0]
		default:
			return AuthHandler{}, nil, ErrAmbiguousHandler
		}
	}

	rh, ok := r.byID[id]
	if !ok {
		return AuthHandler{}, nil, fmt.Errorf("%w: %q", ErrHandlerNotFound, id)
	}
	return rh.handler.clone(), rh.driver, nil
}

// Default returns the first registered handler, or false if none.
func (r *HandlerRegistry) Default() (AuthHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return AuthHandler{}, false
	}
	return r.byID[r.order[0]].handler.clone(), true
}

// IDs returns handler ids in registration order.
func (r *HandlerRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered handlers.
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
