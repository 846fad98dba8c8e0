// Package codeunit loads the executable part of an addon.
//
// The container never links code itself. A Provider turns an addon id and
// its resource files into a Unit exposing start and stop hooks and the
// services the addon publishes. FactoryProvider implements Provider on top
// of factories registered per addon name, either at init time or from main.
package codeunit

import (
	"context"

	"github.com/forge/furnace-sub000/internal/addon"
)

// Unit is the loaded code of one addon version.
type Unit interface {
	// Start runs the addon's startup hook. The context is cancelled when
	// the addon is stopped or its start times out.
	Start(ctx context.Context) error

	// Stop runs the addon's shutdown hook.
	Stop(ctx context.Context) error

	// Services returns the services published once the addon started,
	// keyed by service name.
	Services() map[string]any
}

// Provider loads and releases code units.
type Provider interface {
	// Load returns the code unit of id as seen from view. Loading the
	// same id again without releasing it returns the same unit.
	Load(ctx context.Context, view string, id addon.ID, resources []string) (Unit, error)

	// Release drops the code unit of id. Releasing an unknown id is a no-op.
	Release(id addon.ID)
}

// Funcs adapts plain functions to Unit. Nil hooks do nothing.
type Funcs struct {
	OnStart  func(ctx context.Context) error
	OnStop   func(ctx context.Context) error
	Provides map[string]any
}

func (f *Funcs) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f *Funcs) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

func (f *Funcs) Services() map[string]any {
	return f.Provides
}
