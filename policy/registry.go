package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/outbound/errors"
	"github.com/kbukum/outbound/validation"
)

// Registry is a read-only table of endpoint policies validated at
// construction.
type Registry struct {
	policies map[string]EndpointPolicy
	names    []string
}

// NewRegistry validates every policy and returns a registry holding copies
// of them.
func NewRegistry(policies map[string]EndpointPolicy) (*Registry, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("policy registry: no endpoints configured")
	}

	v := validation.New()
	r := &Registry{policies: make(map[string]EndpointPolicy, len(policies))}
	for name, p := range policies {
		field := "endpoints." + name
		v.Check(strings.TrimSpace(name) != "", "endpoints", "endpoint name must not be empty")
		v.Struct(field, p)
		r.policies[name] = p.Clone()
		r.names = append(r.names, name)
	}
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("policy registry: %w", err)
	}
	slices.Sort(r.names)
	return r, nil
}

// Lookup returns the policy for name or an ENDPOINT_UNKNOWN error.
func (r *Registry) Lookup(name string) (EndpointPolicy, error) {
	p, ok := r.policies[name]
	if !ok {
		return EndpointPolicy{}, errors.EndpointUnknown(name)
	}
	return p.Clone(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.policies[name]
	return ok
}

// Names returns the registered endpoint names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	return len(r.policies)
}
