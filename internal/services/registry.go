// Package services holds the services published by started addons.
package services

import (
	"sort"

	"github.com/forge/furnace-sub000/internal/addon"
)

// Registry is the immutable set of services one addon publishes.
type Registry struct {
	services map[string]any
}

// NewRegistry copies services into a new registry.
func NewRegistry(services map[string]any) *Registry {
	r := &Registry{services: make(map[string]any, len(services))}
	for name, svc := range services {
		if svc != nil {
			r.services[name] = svc
		}
	}
	return r
}

// Lookup returns the service published under name.
func (r *Registry) Lookup(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	svc, ok := r.services[name]
	return svc, ok
}

// Names returns the published service names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of services.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.services)
}

// Get looks up name in r and asserts its type.
func Get[T any](r *Registry, name string) (T, bool) {
	var zero T
	svc, ok := r.Lookup(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	return typed, ok
}

// Instance is a service together with the addon publishing it.
type Instance struct {
	Addon   addon.ID
	Service any
}
