package pkgops

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ralt/pkgcatalog/internal/config"
	"github.com/ralt/pkgcatalog/internal/debfile"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/ralt/pkgcatalog/internal/utils"
	"github.com/sirupsen/logrus"
)

const privilegeHelper = "pkexec"

// Options configures a Manager
type Options struct {
	Root          string
	InfoDir       string
	StatusFile    string
	DownloadDir   string
	BuildDir      string
	BuildCacheDir string
}

// OptionsFromConfig derives manager options from the runtime configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:          cfg.Paths.Root,
		InfoDir:       cfg.Paths.InfoDir,
		StatusFile:    cfg.Paths.StatusFile,
		DownloadDir:   cfg.DownloadDir,
		BuildDir:      cfg.BuildDir,
		BuildCacheDir: cfg.BuildCacheDir,
	}
}

// Manager runs package-manager operations. Each call blocks until the
// external process exits.
type Manager struct {
	runner Runner
	opts   Options
}

// NewManager creates a manager. A nil runner uses ExecRunner.
func NewManager(runner Runner, opts Options) *Manager {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Manager{runner: runner, opts: opts}
}

func (m *Manager) run(ctx context.Context, cmd Command) (Result, error) {
	logrus.Debugf("Running %s", cmd)
	res := m.runner.Run(ctx, cmd)
	return res, check(cmd, res)
}

// Uninstall removes an installed package
func (m *Manager) Uninstall(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	_, err := m.run(ctx, Command{Name: privilegeHelper, Args: []string{"apt-get", "remove", "-y", name}})
	if err != nil {
		return err
	}
	logrus.WithField("package", name).Info("Package removed")
	return nil
}

// SetHold pins a package at its current version, or releases the pin
func (m *Manager) SetHold(ctx context.Context, name string, hold bool) error {
	if err := validName(name); err != nil {
		return err
	}
	selection := "install"
	if hold {
		selection = "hold"
	}

	_, err := m.run(ctx, Command{
		Name:  privilegeHelper,
		Args:  []string{"dpkg", "--set-selections"},
		Stdin: strings.NewReader(fmt.Sprintf("%s %s\n", name, selection)),
	})
	if err != nil {
		return err
	}
	logrus.WithField("package", name).Infof("Selection set to %s", selection)
	return nil
}

// InstallLocal installs a .deb file from disk
func (m *Manager) InstallLocal(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	log := logrus.WithField("file", abs)
	if pkg, err := debfile.Inspect(abs); err == nil {
		log = log.WithField("package", pkg.Identity())
	} else {
		log.Warnf("Could not read package control: %v", err)
	}

	if _, err := m.run(ctx, Command{Name: privilegeHelper, Args: []string{"dpkg", "-i", abs}}); err != nil {
		return err
	}
	log.Info("Package installed")
	return nil
}

// Download fetches the candidate .deb of a package into the download
// directory and returns that directory
func (m *Manager) Download(ctx context.Context, name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if err := utils.EnsureDir(m.opts.DownloadDir); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	if _, err := m.run(ctx, Command{Name: "apt-get", Args: []string{"download", name}, Dir: m.opts.DownloadDir}); err != nil {
		return "", err
	}
	logrus.WithField("package", name).Infof("Downloaded to %s", m.opts.DownloadDir)
	return m.opts.DownloadDir, nil
}

// validName rejects names that would be read as options by the tools
func validName(name string) error {
	if name == "" || strings.HasPrefix(name, "-") || strings.ContainsAny(name, " \t\n") {
		return &models.CatalogError{Type: models.ErrInvalidConfig, Path: name, Err: fmt.Errorf("invalid package name")}
	}
	return nil
}
