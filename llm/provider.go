package llm

import (
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Provider adapts one wire format to the client. Implementations live in
// llm/providers and register themselves from init.
type Provider interface {
	// Name is the key endpoints use in their provider field, e.g. "ollama".
	Name() string

	// BuildURL turns an endpoint's base URL into the completions URL.
	BuildURL(baseURL string) string

	// SetHeaders adds authentication or routing headers.
	SetHeaders(req *http.Request)

	// BuildRequestBody encodes one completion request. A nil temperature
	// leaves the server default in place.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse decodes a completion reply. model is reported when the
	// server omits it.
	ParseResponse(body []byte, model string) (*Response, error)
}

var registered = struct {
	sync.RWMutex
	byName map[string]Provider
}{byName: make(map[string]Provider)}

// RegisterProvider makes p available under its lowercased name. A later
// registration with the same name replaces the earlier one.
func RegisterProvider(p Provider) {
	registered.Lock()
	defer registered.Unlock()
	registered.byName[strings.ToLower(p.Name())] = p
}

// GetProvider returns the provider registered under name, ignoring case, or nil.
func GetProvider(name string) Provider {
	registered.RLock()
	defer registered.RUnlock()
	return registered.byName[strings.ToLower(strings.TrimSpace(name))]
}

// ListProviders returns the registered provider names in sorted order.
func ListProviders() []string {
	registered.RLock()
	defer registered.RUnlock()
	return slices.Sorted(maps.Keys(registered.byName))
}
