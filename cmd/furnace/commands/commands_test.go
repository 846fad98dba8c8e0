package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge/furnace-sub000/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	logLevelFlags = []string{"info"}
	repositoryName, apiVersion, resolveView = "", "", config.DefaultViewName
	dependencies, optionalDeps, exportedDeps, resources = nil, nil, nil, nil
	enableOnDeploy, initForce = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseLogLevelFlags(t *testing.T) {
	t.Setenv("LOG_LEVEL_REPOSITORY_WATCHER", "error")
	t.Setenv("LOG_LEVEL_FURNACE", "info")

	def, pkgs, err := parseLogLevelFlags([]string{"debug", "furnace=warn"})
	require.NoError(t, err)
	assert.Equal(t, "debug", def)
	assert.Equal(t, "error", pkgs["repository.watcher"])
	assert.Equal(t, "warn", pkgs["furnace"], "flags override the environment")

	_, _, err = parseLogLevelFlags([]string{"verbose"})
	assert.Error(t, err)

	_, _, err = parseLogLevelFlags([]string{"graph=loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `package "graph"`)
}

func TestParseDependencies(t *testing.T) {
	entries, err := parseDependencies(
		[]string{"org.example:core@[1.0,2.0)", "theme"},
		[]string{"theme"},
		[]string{"org.example:core"},
	)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "org.example:core", entries[0].Name)
	assert.Equal(t, "[1.0,2.0)", entries[0].Range.String())
	assert.True(t, entries[0].Exported)
	assert.False(t, entries[0].Optional)

	assert.Equal(t, "theme", entries[1].Name)
	assert.True(t, entries[1].Optional)

	_, err = parseDependencies([]string{"@1.0"}, nil, nil)
	assert.Error(t, err)

	_, err = parseDependencies([]string{"core@[2.0,1.0]"}, nil, nil)
	assert.Error(t, err)

	_, err = parseDependencies([]string{"core"}, []string{"other"}, nil)
	assert.Error(t, err)
}

func TestAddonsWorkflow(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "furnace.yaml")

	out, err := execute(t, "config", "init", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	_, err = execute(t, "config", "init", "--config", cfgPath)
	require.Error(t, err, "init must not overwrite")

	out, err = execute(t, "config", "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 repositories")

	_, err = execute(t, "addons", "install", "core:1.0", "-r", "local", "--config", cfgPath, "--enable")
	require.NoError(t, err)
	_, err = execute(t, "addons", "install", "app:2.0", "-r", "local", "--config", cfgPath,
		"--dep", "core@[1.0,2.0)", "--dep", "extras", "--optional", "extras", "--enable")
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, "addons", "core", "1.0"))

	out, err = execute(t, "addons", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "core")
	assert.Contains(t, out, "core [1.0,2.0)")

	out, err = execute(t, "addons", "resolve", "--config", cfgPath)
	require.NoError(t, err)
	corePos := strings.Index(out, "core:1.0")
	appPos := strings.Index(out, "app:2.0")
	require.True(t, corePos >= 0 && appPos >= 0, out)
	assert.Less(t, corePos, appPos, "dependencies resolve first")

	_, err = execute(t, "addons", "disable", "core:1.0", "-r", "local", "--config", cfgPath)
	require.NoError(t, err)
	out, err = execute(t, "addons", "resolve", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "core [1.0,2.0)", "app reports its missing dependency")

	_, err = execute(t, "addons", "uninstall", "app:2.0", "-r", "local", "--config", cfgPath)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "addons", "app", "2.0"))
}

func TestAddonsRequireMutableRepository(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "furnace.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`schema_version: v1
repositories:
  - name: shipped
    path: shipped
`), 0600))

	_, err := execute(t, "addons", "install", "core:1.0", "-r", "shipped", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not mutable")

	_, err = execute(t, "addons", "install", "core:1.0", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--repository is required")

	_, err = execute(t, "addons", "list", "-r", "other", "--config", cfgPath)
	require.Error(t, err)
}
