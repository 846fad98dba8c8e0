package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/versions"
)

func TestMemoryDeployEnable(t *testing.T) {
	repo := NewMemory("local")
	foo := addon.NewID("foo", "1.0", "")
	bar := addon.NewID("bar", "2.0", "")

	assert.False(t, repo.IsDirty())
	assert.Equal(t, int64(0), repo.Version())

	require.NoError(t, repo.Deploy(foo, []addon.DependencyEntry{{Name: "bar"}}, []string{"foo.jar"}))
	assert.True(t, repo.IsDeployed(foo))
	assert.True(t, repo.IsDirty())

	ids, err := repo.ListEnabled()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.Enable(foo))
	require.NoError(t, repo.DeployEnabled(bar))

	ids, err = repo.ListEnabled()
	require.NoError(t, err)
	assert.Equal(t, []addon.ID{bar, foo}, ids)

	deps, err := repo.Dependencies(foo)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "bar", deps[0].Name)

	res, err := repo.Resources(foo)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.jar"}, res)
}

func TestMemoryVersionAndDirty(t *testing.T) {
	repo := NewMemory("local")
	foo := addon.NewID("foo", "1.0", "")
	require.NoError(t, repo.DeployEnabled(foo))

	v := repo.Version()
	repo.ResetDirtyStatus()
	assert.False(t, repo.IsDirty())

	require.NoError(t, repo.Enable(foo))
	assert.Equal(t, v, repo.Version(), "enabling an enabled addon is not a change")
	assert.False(t, repo.IsDirty())

	require.NoError(t, repo.Disable(foo))
	assert.Greater(t, repo.Version(), v)
	assert.True(t, repo.IsDirty())
}

func TestMemoryErrors(t *testing.T) {
	repo := NewMemory("local")
	foo := addon.NewID("foo", "1.0", "")

	assert.Error(t, repo.Enable(foo))
	assert.NoError(t, repo.Disable(foo))
	assert.NoError(t, repo.Undeploy(foo))
	_, err := repo.Dependencies(foo)
	assert.Error(t, err)
	assert.Error(t, repo.Deploy(addon.ID{Version: versions.Parse("1.0")}, nil, nil))
}
