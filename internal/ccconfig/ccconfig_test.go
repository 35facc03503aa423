package ccconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccfront/cc/internal/ccerrors"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cc.kdl"), []byte(content), 0o644))
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "cc_runtime.h", cfg.RuntimeHeader)
	require.Equal(t, []string{dir}, cfg.HeaderSearchRoots)
	require.True(t, cfg.FeatureEnabled("async"), "an unmentioned feature defaults to enabled")
}

func TestLoadParsesHeaderSearchAndRuntimeSections(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
header-search "vendor/include" "local/include" {
    pattern "**/*.cch"
}
runtime {
    header "myrt/runtime.h"
    include-prefix "myrt/"
    builtin "CCResult_CCString_CCError"
}
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"vendor/include", "local/include"}, cfg.HeaderSearchRoots)
	require.Equal(t, "**/*.cch", cfg.HeaderSearchPattern)
	require.Equal(t, "myrt/runtime.h", cfg.RuntimeHeader)
	require.Equal(t, []string{"cc_runtime/", "myrt/"}, cfg.RuntimeIncludePrefixes)
	require.Equal(t, []string{"CCResult_CCString_CCError"}, cfg.BuiltinInstantiations)
}

func TestLoadParsesFeatureToggles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
features {
    async #false
    closures #true
}
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.False(t, cfg.FeatureEnabled("async"))
	require.True(t, cfg.FeatureEnabled("closures"))
	require.True(t, cfg.FeatureEnabled("ufcs"), "unmentioned feature still defaults to enabled")
}

func TestHeaderSearchAcceptsBlockFormChildren(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
header-search {
    "vendor/include"
    "local/include"
}
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"vendor/include", "local/include"}, cfg.HeaderSearchRoots)
}

func TestValidateRejectsEmptyProjectRoot(t *testing.T) {
	cfg := defaultConfig("")
	cfg.HeaderSearchRoots = []string{"include"}

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "project root cannot be empty")
}

func TestValidateRejectsMissingHeaderSearchRoots(t *testing.T) {
	cfg := defaultConfig("/proj")

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least one header search root is required")
}

func TestValidateBatchesEveryFailure(t *testing.T) {
	cfg := defaultConfig("")
	cfg.HeaderSearchPattern = ""
	cfg.RuntimeHeader = ""

	err := cfg.Validate()
	require.Error(t, err)

	var multi *ccerrors.MultiError
	require.ErrorAs(t, err, &multi)
	require.Len(t, multi.Errors, 4)
}

func TestValidatePassesForLoadedConfigs(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}
