package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
)

type greeter interface {
	Greet() string
}

type english struct{}

func (english) Greet() string { return "hello" }

func TestRegistry(t *testing.T) {
	published := map[string]any{"greeter": english{}, "nothing": nil}
	r := NewRegistry(published)
	published["late"] = 1

	assert.Equal(t, []string{"greeter"}, r.Names())
	assert.Equal(t, 1, r.Len())

	g, ok := Get[greeter](r, "greeter")
	require.True(t, ok)
	assert.Equal(t, "hello", g.Greet())

	_, ok = Get[string](r, "greeter")
	assert.False(t, ok)
	_, ok = r.Lookup("late")
	assert.False(t, ok)

	var empty *Registry
	assert.Zero(t, empty.Len())
	_, ok = empty.Lookup("greeter")
	assert.False(t, ok)
}

func TestLookupCacheInvalidatesOnVersion(t *testing.T) {
	c, err := NewLookupCache(0)
	require.NoError(t, err)

	instances := []Instance{{Addon: addon.NewID("foo", "1.0", ""), Service: english{}}}
	c.Put("default", "greeter", 3, instances)

	got, ok := c.Get("default", "greeter", 3)
	require.True(t, ok)
	assert.Equal(t, instances, got)

	_, ok = c.Get("other", "greeter", 3)
	assert.False(t, ok)

	_, ok = c.Get("default", "greeter", 4)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLookupCacheEvicts(t *testing.T) {
	c, err := NewLookupCache(2)
	require.NoError(t, err)

	c.Put("v", "a", 1, nil)
	c.Put("v", "b", 1, nil)
	c.Put("v", "c", 1, nil)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("v", "a", 1)
	assert.False(t, ok)

	c.Purge()
	assert.Zero(t, c.Len())
}
