package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/spf13/viper"
)

// Paths holds the on-disk locations read by the catalog
type Paths struct {
	Root           string `mapstructure:"root"` // prefix for manifest and desktop entry paths
	SourcesList    string `mapstructure:"sources_list"`
	SourcesListDir string `mapstructure:"sources_list_dir"`
	ListsDir       string `mapstructure:"lists_dir"`
	StatusFile     string `mapstructure:"status_file"`
	InfoDir        string `mapstructure:"info_dir"`
}

// MonitorConfig tunes the package state monitor
type MonitorConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Config holds all runtime configuration.
// Values are populated from the config file, PKGCATALOG_* env vars, and CLI flags.
type Config struct {
	Paths         Paths         `mapstructure:"paths"`
	HostArch      string        `mapstructure:"host_arch"`
	Locale        string        `mapstructure:"locale"`
	DesktopEnv    string        `mapstructure:"desktop_env"`
	Vendor        string        `mapstructure:"vendor"`
	OnlyHostArch  bool          `mapstructure:"only_host_arch"`
	Monitor       MonitorConfig `mapstructure:"monitor"`
	DownloadDir   string        `mapstructure:"download_dir"`
	BuildDir      string        `mapstructure:"build_dir"`
	BuildCacheDir string        `mapstructure:"build_cache_dir"`
	MetricsListen string        `mapstructure:"metrics_listen"`
	Verbose       bool          `mapstructure:"verbose"`
}

// SetDefaults registers built-in defaults on v
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	user := filepath.Base(home)

	v.SetDefault("paths.root", "/")
	v.SetDefault("paths.sources_list", "/etc/apt/sources.list")
	v.SetDefault("paths.sources_list_dir", "/etc/apt/sources.list.d")
	v.SetDefault("paths.lists_dir", "/var/lib/apt/lists")
	v.SetDefault("paths.status_file", "/var/lib/dpkg/status")
	v.SetDefault("paths.info_dir", "/var/lib/dpkg/info")
	v.SetDefault("host_arch", DebianArch(runtime.GOARCH))
	v.SetDefault("locale", SystemLocale())
	v.SetDefault("desktop_env", "Deepin")
	v.SetDefault("vendor", "deepin")
	v.SetDefault("only_host_arch", false)
	v.SetDefault("monitor.debounce", 500*time.Millisecond)
	v.SetDefault("monitor.poll_interval", 30*time.Second)
	v.SetDefault("download_dir", filepath.Join(home, "Desktop", "downloadedPkg"))
	v.SetDefault("build_dir", filepath.Join(home, "Desktop", "pkgBuild"))
	v.SetDefault("build_cache_dir", filepath.Join(os.TempDir(), "pkgcatalog", user, "pkg-build-cache"))
	v.SetDefault("metrics_listen", "")
	v.SetDefault("verbose", false)
}

// Load reads configuration from v, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.CatalogError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("failed to decode configuration: %w", err),
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values
func Validate(cfg *Config) error {
	if cfg.Paths.StatusFile == "" {
		return &models.CatalogError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("paths.status_file is required")}
	}
	if cfg.Paths.InfoDir == "" {
		return &models.CatalogError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("paths.info_dir is required")}
	}
	if cfg.HostArch == "" {
		return &models.CatalogError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("host_arch is required")}
	}
	if cfg.Monitor.Debounce < 0 || cfg.Monitor.PollInterval < 0 {
		return &models.CatalogError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("monitor intervals must not be negative")}
	}
	return nil
}

// DebianArch maps a Go architecture name to dpkg's name for it
func DebianArch(goarch string) string {
	switch goarch {
	case "386":
		return "i386"
	case "arm":
		return "armhf"
	case "ppc64le":
		return "ppc64el"
	case "mipsle":
		return "mipsel"
	case "mips64le":
		return "mips64el"
	case "loong64":
		return "loong64"
	default:
		// amd64, arm64, riscv64, s390x share their names
		return goarch
	}
}

// SystemLocale returns the message locale from the environment, e.g. zh_CN
func SystemLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if value := os.Getenv(key); value != "" {
			return NormalizeLocale(value)
		}
	}
	return ""
}

// NormalizeLocale strips the codeset and modifier from a locale name
func NormalizeLocale(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "C" || locale == "POSIX" {
		return ""
	}
	return locale
}
