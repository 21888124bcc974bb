package gateway

import (
	"sort"
	"strings"

	"github.com/MikeMC777/ordenes-checkout/internal/config"
)

// Registry maps gateway names to clients. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gs ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gs))}
	for _, g := range gs {
		r.gateways[g.Name()] = g
	}
	return r
}

// NewDefaultRegistry builds the three provider clients from configuration.
func NewDefaultRegistry(cfg config.Payment, d Deps) *Registry {
	if d.Timeout <= 0 {
		d.Timeout = cfg.Timeout
	}
	d.Debug = d.Debug || cfg.Debug
	return NewRegistry(
		NewMyFatoorah(cfg.MyFatoorah, d),
		NewTabby(cfg.Tabby, d),
		NewTamara(cfg.Tamara, d),
	)
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *Registry) Resolve(name string) (Gateway, error) {
	if g, ok := r.gateways[normalize(name)]; ok {
		return g, nil
	}
	return nil, &UnsupportedError{Name: name}
}

func (r *Registry) IsSupported(name string) bool {
	_, ok := r.gateways[normalize(name)]
	return ok
}

// Available returns the registered names in lexical order.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
