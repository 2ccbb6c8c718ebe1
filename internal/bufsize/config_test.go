package bufsize_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissamuel/smatch/internal/bufsize"
)

func TestDefaultConfig(t *testing.T) {
	cfg := bufsize.DefaultConfig(false)
	assert.Equal(t, 0, cfg.Allocators["malloc"])
	assert.Equal(t, 1, cfg.Allocators["realloc"])
	assert.NotContains(t, cfg.Allocators, "kmalloc")
	assert.Empty(t, cfg.CopyFuncs)

	kernel := bufsize.DefaultConfig(true)
	assert.Equal(t, 0, kernel.Allocators["kmalloc"])
	assert.Equal(t, 1, kernel.Allocators["devm_kzalloc"])
	assert.Equal(t, 0, kernel.Callocs["kcalloc"])
	assert.Contains(t, kernel.CopyFuncs, "copy_from_user")
}

func TestLoadConfigNoFile(t *testing.T) {
	cfg, err := bufsize.LoadConfig(afero.NewMemMapFs(), "", false)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Allocators["malloc"])
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "smatch.yaml", []byte(`
kernel: true
allocators:
  my_alloc: 1
copy_functions:
  - my_copy
known_limits:
  - data: "(struct device)->count"
    array: ""
`), 0o644))

	cfg, err := bufsize.LoadConfig(fs, "smatch.yaml", false)
	require.NoError(t, err)

	assert.True(t, cfg.Kernel)
	assert.Equal(t, 1, cfg.Allocators["my_alloc"])
	assert.Equal(t, 0, cfg.Allocators["kmalloc"], "kernel upgrade pulls in the kernel tables")
	assert.Contains(t, cfg.CopyFuncs, "copy_from_user")
	assert.Contains(t, cfg.CopyFuncs, "my_copy")
	require.Len(t, cfg.KnownLimits, 1)
	assert.Equal(t, "(struct device)->count", cfg.KnownLimits[0].Data)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := bufsize.LoadConfig(afero.NewMemMapFs(), "nope.yaml", false)
	assert.Error(t, err)
}
