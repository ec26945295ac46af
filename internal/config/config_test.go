package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/etc/apt/sources.list", cfg.Paths.SourcesList)
	assert.Equal(t, "/etc/apt/sources.list.d", cfg.Paths.SourcesListDir)
	assert.Equal(t, "/var/lib/apt/lists", cfg.Paths.ListsDir)
	assert.Equal(t, "/var/lib/dpkg/status", cfg.Paths.StatusFile)
	assert.Equal(t, "/var/lib/dpkg/info", cfg.Paths.InfoDir)
	assert.Equal(t, "Deepin", cfg.DesktopEnv)
	assert.Equal(t, "deepin", cfg.Vendor)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval)
	assert.NotEmpty(t, cfg.HostArch)
	assert.False(t, cfg.OnlyHostArch)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `paths:
  status_file: /srv/dpkg/status
host_arch: arm64
only_host_arch: true
monitor:
  debounce: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/dpkg/status", cfg.Paths.StatusFile)
	assert.Equal(t, "/var/lib/dpkg/info", cfg.Paths.InfoDir)
	assert.Equal(t, "arm64", cfg.HostArch)
	assert.True(t, cfg.OnlyHostArch)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Debounce)
}

func TestValidateRejectsEmptyArch(t *testing.T) {
	v := viper.New()
	v.Set("host_arch", "")

	_, err := Load(v)
	var catErr *models.CatalogError
	require.True(t, errors.As(err, &catErr))
	assert.Equal(t, models.ErrInvalidConfig, catErr.Type)
}

func TestDebianArch(t *testing.T) {
	tests := map[string]string{
		"amd64":    "amd64",
		"386":      "i386",
		"arm64":    "arm64",
		"arm":      "armhf",
		"ppc64le":  "ppc64el",
		"mips64le": "mips64el",
		"riscv64":  "riscv64",
		"loong64":  "loong64",
	}
	for goarch, want := range tests {
		assert.Equal(t, want, DebianArch(goarch), goarch)
	}
}

func TestSystemLocale(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "zh_CN.UTF-8")
	assert.Equal(t, "zh_CN", SystemLocale())

	t.Setenv("LC_MESSAGES", "de_DE@euro")
	assert.Equal(t, "de_DE", SystemLocale())

	t.Setenv("LC_ALL", "C")
	assert.Equal(t, "", SystemLocale())
}
