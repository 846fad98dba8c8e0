// Package events dispatches container lifecycle notifications.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/logging"
)

// Listener receives container and addon lifecycle notifications. Calls are
// synchronous and made in registration order. A returned error is logged
// and does not stop delivery to the remaining listeners.
type Listener interface {
	BeforeStart(ctx context.Context) error
	AfterStart(ctx context.Context) error
	BeforeStop(ctx context.Context) error
	AfterStop(ctx context.Context) error
	BeforeConfigurationScan(ctx context.Context) error
	AfterConfigurationScan(ctx context.Context) error
	PostStartup(ctx context.Context, id addon.ID) error
	PreShutdown(ctx context.Context, id addon.ID) error
}

// NopListener implements Listener with no-ops. Embed it to override only
// the notifications of interest.
type NopListener struct{}

func (NopListener) BeforeStart(context.Context) error             { return nil }
func (NopListener) AfterStart(context.Context) error              { return nil }
func (NopListener) BeforeStop(context.Context) error              { return nil }
func (NopListener) AfterStop(context.Context) error               { return nil }
func (NopListener) BeforeConfigurationScan(context.Context) error { return nil }
func (NopListener) AfterConfigurationScan(context.Context) error  { return nil }
func (NopListener) PostStartup(context.Context, addon.ID) error   { return nil }
func (NopListener) PreShutdown(context.Context, addon.ID) error   { return nil }

type registration struct {
	seq      uint64
	listener Listener
}

// Manager holds the registered listeners.
type Manager struct {
	mu        sync.RWMutex
	seq       uint64
	listeners []registration
	logger    *logging.Logger
}

// NewManager creates a manager without listeners.
func NewManager() *Manager {
	return &Manager{logger: logging.GetLogger("events")}
}

// Add registers l and returns a function removing it again.
func (m *Manager) Add(l Listener) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	seq := m.seq
	m.listeners = append(m.listeners, registration{seq: seq, listener: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, r := range m.listeners {
				if r.seq == seq {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Len returns the number of registered listeners.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}

func (m *Manager) FireBeforeStart(ctx context.Context) {
	m.fire(ctx, "BeforeStart", nil, Listener.BeforeStart)
}

func (m *Manager) FireAfterStart(ctx context.Context) {
	m.fire(ctx, "AfterStart", nil, Listener.AfterStart)
}

func (m *Manager) FireBeforeStop(ctx context.Context) {
	m.fire(ctx, "BeforeStop", nil, Listener.BeforeStop)
}

func (m *Manager) FireAfterStop(ctx context.Context) {
	m.fire(ctx, "AfterStop", nil, Listener.AfterStop)
}

func (m *Manager) FireBeforeConfigurationScan(ctx context.Context) {
	m.fire(ctx, "BeforeConfigurationScan", nil, Listener.BeforeConfigurationScan)
}

func (m *Manager) FireAfterConfigurationScan(ctx context.Context) {
	m.fire(ctx, "AfterConfigurationScan", nil, Listener.AfterConfigurationScan)
}

// FirePostStartup notifies that id finished starting.
func (m *Manager) FirePostStartup(ctx context.Context, id addon.ID) {
	m.fire(ctx, "PostStartup", &id, func(l Listener, ctx context.Context) error {
		return l.PostStartup(ctx, id)
	})
}

// FirePreShutdown notifies that id is about to stop.
func (m *Manager) FirePreShutdown(ctx context.Context, id addon.ID) {
	m.fire(ctx, "PreShutdown", &id, func(l Listener, ctx context.Context) error {
		return l.PreShutdown(ctx, id)
	})
}

func (m *Manager) fire(ctx context.Context, event string, id *addon.ID, call func(Listener, context.Context) error) {
	m.mu.RLock()
	listeners := append([]registration(nil), m.listeners...)
	m.mu.RUnlock()

	for _, r := range listeners {
		if err := m.notify(ctx, r.listener, call); err != nil {
			fields := []logging.LogField{
				logging.Field("event", event),
				logging.Field("listener", fmt.Sprintf("%T", r.listener)),
				logging.Field("error", err),
			}
			if id != nil {
				fields = append(fields, logging.Field("addon", id.String()))
			}
			m.logger.WithContext(ctx).ErrorWithFields("Lifecycle listener failed", fields...)
		}
	}
}

func (m *Manager) notify(ctx context.Context, l Listener, call func(Listener, context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return call(l, ctx)
}
