// Package provider holds the pieces shared by vendor adapters: the static
// vendor description, the dependencies a constructor receives, and the
// explicit registry that maps (domain, vendor) to a constructor.
package provider

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/domain/port/driven"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

// Spec is the fixed description of one vendor integration.
type Spec struct {
	// RateLimit is the vendor's default quota; tenants may override it.
	RateLimit model.RateLimit
	Policy    resilience.Policy
	// AuthModes lists the credential variants the vendor accepts.
	AuthModes []model.AuthMode
	// ValidateOnConstruct makes the factory call Validate before caching.
	ValidateOnConstruct bool
}

// Accepts reports whether the vendor takes credentials of the given mode.
func (s Spec) Accepts(mode model.AuthMode) bool {
	return slices.Contains(s.AuthModes, mode)
}

// Deps is everything a vendor constructor is handed by the factory.
type Deps struct {
	Identity    model.ProviderIdentity
	Credentials model.Credentials
	Config      model.ProviderConfig
	Executor    *resilience.Executor
	Transport   driven.Transport
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Constructor builds a provider instance. It must not perform network I/O;
// the factory calls Validate separately when the Spec asks for it.
type Constructor func(Deps) (driven.Provider, error)

// Binding ties a vendor name within a domain to its constructor.
type Binding struct {
	Domain model.Domain
	Vendor string
	Spec   Spec
	New    Constructor
}

// Bind adapts a typed constructor into a Binding.
func Bind[P driven.Provider](domain model.Domain, vendor string, spec Spec, ctor func(Deps) (P, error)) Binding {
	return Binding{
		Domain: domain,
		Vendor: vendor,
		Spec:   spec,
		New: func(d Deps) (driven.Provider, error) {
			p, err := ctor(d)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

type bindingKey struct {
	domain model.Domain
	vendor string
}

// Registry is an immutable table of bindings built once at startup.
type Registry struct {
	bindings map[bindingKey]Binding
	order    []bindingKey
}

// NewRegistry builds a registry from an explicit list of bindings. Duplicate
// (domain, vendor) pairs, unknown domains, empty vendor names and missing
// constructors are rejected.
func NewRegistry(bindings ...Binding) (*Registry, error) {
	r := &Registry{bindings: make(map[bindingKey]Binding, len(bindings))}
	for _, b := range bindings {
		if !b.Domain.IsValid() {
			return nil, fmt.Errorf("register vendor %q: unknown domain %q", b.Vendor, b.Domain)
		}
		if b.Vendor == "" {
			return nil, fmt.Errorf("register %s binding: empty vendor name", b.Domain)
		}
		if b.New == nil {
			return nil, fmt.Errorf("register %s/%s: nil constructor", b.Domain, b.Vendor)
		}
		if len(b.Spec.AuthModes) == 0 {
			return nil, fmt.Errorf("register %s/%s: no auth modes", b.Domain, b.Vendor)
		}
		if err := b.Spec.RateLimit.Validate(); err != nil {
			return nil, fmt.Errorf("register %s/%s: %w", b.Domain, b.Vendor, err)
		}
		key := bindingKey{b.Domain, b.Vendor}
		if _, dup := r.bindings[key]; dup {
			return nil, fmt.Errorf("register %s/%s: duplicate binding", b.Domain, b.Vendor)
		}
		r.bindings[key] = b
		r.order = append(r.order, key)
	}
	return r, nil
}

// Lookup returns the binding for vendor within domain.
func (r *Registry) Lookup(domain model.Domain, vendor string) (Binding, bool) {
	b, ok := r.bindings[bindingKey{domain, vendor}]
	return b, ok
}

// Vendors lists the vendors registered for domain in registration order.
func (r *Registry) Vendors(domain model.Domain) []string {
	var out []string
	for _, k := range r.order {
		if k.domain == domain {
			out = append(out, k.vendor)
		}
	}
	return out
}

// Bindings returns every binding in registration order.
func (r *Registry) Bindings() []Binding {
	out := make([]Binding, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.bindings[k])
	}
	return out
}
