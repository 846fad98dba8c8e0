package furnace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/repository"
	"github.com/forge/furnace-sub000/internal/services"
)

func TestServiceLookupFollowsExports(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.deploy("core:1.0").services = map[string]any{"clock": "core-clock"}
	fx.deploy("hidden:1.0").services = map[string]any{"secret": "hidden-secret"}
	fx.deploy("lib:1.0", exported(dep("core", "")), dep("hidden", "")).services = map[string]any{"greeter": "lib-greeter"}
	fx.deploy("app:1.0", dep("lib", "")).services = map[string]any{"greeter": "app-greeter"}
	fx.start()
	fx.waitStarted("app:1.0")
	ctx := context.Background()
	app, lib := fx.addon("app:1.0"), fx.addon("lib:1.0")

	svc, err := app.Lookup(ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "app-greeter", svc)

	svc, err = app.Lookup(ctx, "clock")
	require.NoError(t, err)
	assert.Equal(t, "core-clock", svc)

	_, err = app.Lookup(ctx, "secret")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	svc, err = lib.Lookup(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, "hidden-secret", svc)

	info, err := app.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeter"}, info.Services)
	assert.Equal(t, []Dependency{{ID: id("lib:1.0")}}, info.Dependencies)
	assert.Equal(t, "local", info.Repository)
}

func TestViewServicesAreCachedPerVersion(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.deploy("en:1.0").services = map[string]any{"greeter": "hello"}
	fx.deploy("fr:1.0").services = map[string]any{"greeter": "bonjour"}
	fx.start()
	fx.waitStarted("en:1.0")
	fx.waitStarted("fr:1.0")
	ctx := context.Background()
	registry := fx.f.Registry()

	instances, err := registry.Services(ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, []services.Instance{
		{Addon: id("en:1.0"), Service: "hello"},
		{Addon: id("fr:1.0"), Service: "bonjour"},
	}, instances)
	_, cached := fx.f.lookups.Get(registry.Name(), "greeter", registry.Version())
	assert.True(t, cached)

	require.NoError(t, fx.repo.Disable(id("fr:1.0")))
	fx.update()

	instances, err = registry.Services(ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, []services.Instance{{Addon: id("en:1.0"), Service: "hello"}}, instances)
}

func TestViewsOverRepositorySubsets(t *testing.T) {
	fx := newFixture(t, Options{})
	extra := repository.NewMemory("extra")
	require.NoError(t, fx.f.AddRepository(extra))
	fx.deploy("foo:1.0")
	fx.deployTo(extra, "bar:1.0")
	fx.start()
	ctx := context.Background()

	local, err := fx.f.View(ctx, fx.repo)
	require.NoError(t, err)
	again, err := fx.f.View(ctx, fx.repo)
	require.NoError(t, err)
	assert.Same(t, local, again)
	assert.Equal(t, "local", local.Name())
	assert.Len(t, fx.f.Views(), 2)

	fx.waitStarted("foo:1.0")
	fx.waitStarted("bar:1.0")

	assert.Equal(t, []string{"foo:1.0"}, fx.ids(local))
	assert.Equal(t, []string{"bar:1.0", "foo:1.0"}, fx.ids(fx.f.Registry()))
	assert.Equal(t, []string{"bar:1.0"}, fx.ids(fx.f.Registry(), addon.NameFilter("bar")))

	_, err = local.Addon(ctx, id("bar:1.0"))
	assert.ErrorIs(t, err, ErrAddonNotFound)

	info, err := fx.addon("foo:1.0").Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultViewName, "local"}, info.Views)

	_, err = fx.f.AddView(ctx, "local", extra)
	assert.Error(t, err)
	_, err = fx.f.AddView(ctx, DefaultViewName, extra)
	assert.Error(t, err)
}

func TestViewPrecedenceFollowsRepositoryOrder(t *testing.T) {
	fx := newFixture(t, Options{})
	first := repository.NewMemory("first")
	second := repository.NewMemory("second")
	fx.deployTo(first, "foo:1.0")
	fx.deployTo(second, "foo:1.0")
	fx.start()
	ctx := context.Background()

	v, err := fx.f.AddView(ctx, "layered", first, second)
	require.NoError(t, err)

	a, err := v.Addon(ctx, id("foo:1.0"))
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.WaitUntilStarted(waitCtx))

	info, err := a.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", info.Repository)
	assert.Equal(t, []string{"layered"}, info.Views)
	assert.Equal(t, []string{"first", "second"}, repoNames(v.Repositories()))
	assert.Empty(t, fx.ids(fx.f.Registry()))
}

func repoNames(repos []addon.Repository) []string {
	out := make([]string, len(repos))
	for i, r := range repos {
		out[i] = r.Name()
	}
	return out
}
