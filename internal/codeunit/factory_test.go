package codeunit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
)

func staticFactory(unit Unit) Factory {
	return func(context.Context, string, addon.ID, []string) (Unit, error) {
		return unit, nil
	}
}

func TestFactoryRegistry(t *testing.T) {
	r := NewFactoryRegistry()

	require.NoError(t, r.Register("b", staticFactory(&Funcs{})))
	require.NoError(t, r.Register("a", staticFactory(&Funcs{})))

	assert.EqualError(t, r.Register("", staticFactory(&Funcs{})), "addon name cannot be empty")
	assert.EqualError(t, r.Register("a", staticFactory(&Funcs{})), `factory for addon "a" is already registered`)
	assert.Error(t, r.Register("c", nil))

	assert.Equal(t, []string{"a", "b"}, r.List())
	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestFactoryProviderCachesUntilRelease(t *testing.T) {
	r := NewFactoryRegistry()
	calls := 0
	require.NoError(t, r.Register("foo", func(_ context.Context, view string, id addon.ID, resources []string) (Unit, error) {
		calls++
		assert.Equal(t, "default", view)
		assert.Equal(t, []string{"lib/foo.so"}, resources)
		return &Funcs{Provides: map[string]any{"greeter": id.String()}}, nil
	}))
	p := NewFactoryProvider(r)
	id := addon.NewID("foo", "1.0", "")

	first, err := p.Load(context.Background(), "default", id, []string{"lib/foo.so"})
	require.NoError(t, err)
	second, err := p.Load(context.Background(), "default", id, []string{"lib/foo.so"})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "foo:1.0", first.Services()["greeter"])
	assert.True(t, p.Loaded(id))

	p.Release(id)
	p.Release(id)
	assert.False(t, p.Loaded(id))

	_, err = p.Load(context.Background(), "default", id, []string{"lib/foo.so"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFactoryProviderErrors(t *testing.T) {
	r := NewFactoryRegistry()
	require.NoError(t, r.Register("broken", func(context.Context, string, addon.ID, []string) (Unit, error) {
		return nil, errors.New("no such library")
	}))
	p := NewFactoryProvider(r)

	_, err := p.Load(context.Background(), "default", addon.NewID("unknown", "1.0", ""), nil)
	assert.EqualError(t, err, `no code unit factory registered for addon "unknown"`)

	_, err = p.Load(context.Background(), "default", addon.NewID("broken", "1.0", ""), nil)
	assert.EqualError(t, err, "failed to load code unit of broken:1.0: no such library")
	assert.False(t, p.Loaded(addon.NewID("broken", "1.0", "")))
}

func TestFuncsDefaults(t *testing.T) {
	u := &Funcs{}
	assert.NoError(t, u.Start(context.Background()))
	assert.NoError(t, u.Stop(context.Background()))
	assert.Nil(t, u.Services())

	stopped := false
	u = &Funcs{OnStop: func(context.Context) error { stopped = true; return nil }}
	require.NoError(t, u.Stop(context.Background()))
	assert.True(t, stopped)
}

func TestFactoryProviderFallback(t *testing.T) {
	p := NewFactoryProvider(NewFactoryRegistry()).WithFallback(ResourceOnly)

	unit, err := p.Load(context.Background(), "default", addon.NewID("assets", "1.0", ""), []string{"a.css", "b.js"})
	require.NoError(t, err)
	require.NoError(t, unit.Start(context.Background()))
	assert.Equal(t, []string{"a.css", "b.js"}, unit.Services()[ResourcesService])
	require.NoError(t, unit.Stop(context.Background()))
}
