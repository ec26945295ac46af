package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/pkgcatalog/internal/catalog"
	"github.com/ralt/pkgcatalog/internal/config"
	"github.com/ralt/pkgcatalog/internal/metrics"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries state shared by every subcommand
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// flagKeys maps persistent flags to configuration keys
var flagKeys = map[string]string{
	"root":           "paths.root",
	"sources-list":   "paths.sources_list",
	"sources-dir":    "paths.sources_list_dir",
	"lists-dir":      "paths.lists_dir",
	"status-file":    "paths.status_file",
	"info-dir":       "paths.info_dir",
	"host-arch":      "host_arch",
	"locale":         "locale",
	"only-host-arch": "only_host_arch",
	"verbose":        "verbose",
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "pkgcatalog",
		Short: "Browse and manage the packages known to apt and dpkg",
		Long: `Pkgcatalog merges the apt repository indexes and the dpkg status
database into one catalog of packages, with their installed editions,
desktop launchers and download locations.

It can list and search that catalog, follow package changes as they
happen, and drive dpkg/apt for removal, holds, local installs, downloads
and rebuilding a .deb from an installed package.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}

			if err := a.initConfig(cmd); err != nil {
				return err
			}
			if a.cfg.Verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			logrus.Debugf("Configuration: %+v", *a.cfg)
			return nil
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.String("config", "", "Config file (default ~/.config/pkgcatalog/config.yaml)")
	flags.String("root", "", "Prefix for manifest and desktop entry paths")
	flags.String("sources-list", "", "apt sources.list file")
	flags.String("sources-dir", "", "apt sources.list.d directory")
	flags.String("lists-dir", "", "apt lists directory")
	flags.String("status-file", "", "dpkg status file")
	flags.String("info-dir", "", "dpkg info directory")
	flags.String("host-arch", "", "Native architecture (default from the running binary)")
	flags.String("locale", "", "Locale for application names (default from LANG)")
	flags.Bool("only-host-arch", false, "Only read indexes for the native architecture")

	for flag, key := range flagKeys {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	// Add subcommands
	rootCmd.AddCommand(
		newListCmd(a),
		newSearchCmd(a),
		newShowCmd(a),
		newWatchCmd(a),
		newRemoveCmd(a),
		newHoldCmd(a, true),
		newHoldCmd(a, false),
		newInstallCmd(a),
		newInspectCmd(),
		newDownloadCmd(a),
		newRepackCmd(a),
	)

	return rootCmd
}

func (a *app) initConfig(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".config", "pkgcatalog"))
		}
	}

	a.v.SetEnvPrefix("PKGCATALOG")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	// A missing default config file is fine; an explicit one must load
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return &models.CatalogError{Type: models.ErrInvalidConfig, Path: cfgFile, Err: err}
		}
	} else {
		logrus.Debugf("Using config file %s", a.v.ConfigFileUsed())
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// startService builds a catalog service, runs it until the returned stop
// function is called, and loads the catalog once
func (a *app) startService(ctx context.Context, m *metrics.Metrics) (*catalog.Service, func(), error) {
	builder := catalog.NewBuilder(catalog.OptionsFromConfig(a.cfg, m))
	svc := catalog.NewService(builder, m)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	stop := func() {
		cancel()
		<-done
	}

	if _, err := svc.Reload(ctx); err != nil {
		stop()
		return nil, nil, err
	}
	return svc, stop, nil
}
