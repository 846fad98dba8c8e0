package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/versions"
)

func newDirectory(t *testing.T) *Directory {
	t.Helper()
	repo, err := NewDirectory("disk", filepath.Join(t.TempDir(), "addons"))
	require.NoError(t, err)
	return repo
}

func TestDirectoryRoundTrip(t *testing.T) {
	repo := newDirectory(t)
	foo := addon.NewID("org.example:foo", "1.0.0", "2.0.0")
	rng, err := versions.ParseRange("[1.0,2.0)")
	require.NoError(t, err)

	require.NoError(t, repo.Deploy(foo, []addon.DependencyEntry{
		{Name: "bar", Range: rng, Exported: true},
		{Name: "baz", Optional: true},
	}, []string{"lib/foo.jar"}))
	require.NoError(t, repo.Enable(foo))

	// A second handle on the same root sees the persisted state.
	reopened, err := NewDirectory("disk", repo.Root())
	require.NoError(t, err)

	ids, err := reopened.ListEnabled()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.True(t, ids[0].Equal(foo))
	assert.Equal(t, "2.0.0", ids[0].APIVersion.String())
	assert.True(t, reopened.IsDeployed(foo))

	deps, err := reopened.Dependencies(foo)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "bar", deps[0].Name)
	assert.Equal(t, "[1.0,2.0)", deps[0].Range.String())
	assert.True(t, deps[0].Exported)
	assert.True(t, deps[1].Optional)
	assert.True(t, deps[1].Range.Includes(versions.Parse("42")))

	res, err := reopened.Resources(foo)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(repo.AddonDir(foo), "lib/foo.jar")}, res)
}

func TestDirectoryDisableAndUndeploy(t *testing.T) {
	repo := newDirectory(t)
	foo := addon.NewID("foo", "1.0.0", "")
	require.NoError(t, repo.Deploy(foo, nil, nil))
	require.NoError(t, repo.Enable(foo))

	v := repo.Version()
	require.NoError(t, repo.Disable(foo))
	assert.Greater(t, repo.Version(), v)

	ids, err := repo.ListEnabled()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.Undeploy(foo))
	assert.False(t, repo.IsDeployed(foo))
	index, err := repo.LoadIndex()
	require.NoError(t, err)
	assert.Empty(t, index.Addons)
	assert.Error(t, repo.Enable(foo))
}

func TestDirectoryReadsHandWrittenFiles(t *testing.T) {
	repo := newDirectory(t)
	foo := addon.NewID("foo", "1.0.0", "")

	require.NoError(t, os.WriteFile(filepath.Join(repo.Root(), IndexFile), []byte(`schema_version: v1
addons:
  - name: foo
    version: 1.0.0
    enabled: true
`), 0o600))
	require.NoError(t, os.MkdirAll(repo.AddonDir(foo), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo.AddonDir(foo), DescriptorFile), []byte(`schema_version: v1
name: foo
version: 1.0.0
dependencies:
  - name: bar
    version: "(1.0,1.0]"
`), 0o600))

	ids, err := repo.ListEnabled()
	require.NoError(t, err)
	require.Len(t, ids, 1)

	_, err = repo.Dependencies(foo)
	var verr *versions.VersionError
	assert.True(t, errors.As(err, &verr), "malformed range must surface as VersionError, got %v", err)
}

func TestDirectoryRejectsBadIndex(t *testing.T) {
	repo := newDirectory(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo.Root(), IndexFile), []byte("schema_version: v9\n"), 0o600))

	_, err := repo.ListEnabled()
	assert.ErrorContains(t, err, "unsupported schema_version")
}

func TestWatcherMarksRepositoryDirty(t *testing.T) {
	repo := newDirectory(t)
	w, err := WatchDirectory(repo, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	assert.False(t, repo.IsDirty())
	before := repo.Version()

	// Another process edits the index.
	require.NoError(t, os.WriteFile(filepath.Join(repo.Root(), IndexFile), []byte("schema_version: v1\n"), 0o600))

	require.Eventually(t, repo.IsDirty, 2*time.Second, 20*time.Millisecond)
	assert.Greater(t, repo.Version(), before)
}

func TestWatcherRequiresPathAndCallback(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{}, func() {})
	assert.Error(t, err)
	_, err = NewWatcher(WatcherConfig{Path: t.TempDir()}, nil)
	assert.Error(t, err)
}
