package lifecycle

import "context"

// Component is a long-running part of the process managed by Manager.
type Component interface {
	// Start brings the component up. It must return once the component
	// is ready; background work continues after return.
	Start(ctx context.Context) error

	// Stop releases the component within the context deadline.
	Stop(ctx context.Context) error

	// Name identifies the component in logs and errors.
	Name() string
}

// Func adapts a pair of functions to Component. Use it by pointer.
type Func struct {
	ComponentName string
	OnStart       func(ctx context.Context) error
	OnStop        func(ctx context.Context) error
}

func (f *Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f *Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

func (f *Func) Name() string { return f.ComponentName }
