package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ralt/pkgcatalog/internal/config"
	"github.com/ralt/pkgcatalog/internal/control"
	"github.com/ralt/pkgcatalog/internal/desktop"
	"github.com/ralt/pkgcatalog/internal/metrics"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/ralt/pkgcatalog/internal/scanner"
	"github.com/ralt/pkgcatalog/internal/sources"
	"github.com/sirupsen/logrus"
)

// Options configures a Builder
type Options struct {
	Paths        config.Paths
	HostArch     string
	Locale       string
	DesktopEnv   string
	Vendor       string
	OnlyHostArch bool
	Metrics      *metrics.Metrics
}

// OptionsFromConfig derives builder options from the runtime configuration
func OptionsFromConfig(cfg *config.Config, m *metrics.Metrics) Options {
	return Options{
		Paths:        cfg.Paths,
		HostArch:     cfg.HostArch,
		Locale:       cfg.Locale,
		DesktopEnv:   cfg.DesktopEnv,
		Vendor:       cfg.Vendor,
		OnlyHostArch: cfg.OnlyHostArch,
		Metrics:      m,
	}
}

// LoadStats summarizes one catalog rebuild
type LoadStats struct {
	IndexFiles int
	Skipped    int
	Candidates int
	Installed  int
	Packages   int
	Duration   time.Duration
}

// Builder merges repository indexes and the dpkg status file into a catalog.
// It is not safe for concurrent use; Service serializes access to it.
type Builder struct {
	opts    Options
	sources *sources.Resolver
	desktop *desktop.Resolver
	apps    map[string]*models.AppInfo
}

// NewBuilder creates an empty builder
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:    opts,
		sources: sources.NewResolver(opts.Paths.SourcesList, opts.Paths.SourcesListDir),
		desktop: desktop.NewResolver(opts.Locale, opts.DesktopEnv, opts.Vendor),
		apps:    make(map[string]*models.AppInfo),
	}
}

// Load rebuilds the catalog from scratch. Unreadable or unresolvable files
// are logged and skipped; they never abort the rebuild.
func (b *Builder) Load(ctx context.Context) LoadStats {
	start := time.Now()
	var stats LoadStats

	b.apps = make(map[string]*models.AppInfo)
	b.sources.Reload()

	arch := ""
	if b.opts.OnlyHostArch {
		arch = b.opts.HostArch
	}

	indexes, err := scanner.ScanIndexes(ctx, b.opts.Paths.ListsDir, arch)
	if err != nil {
		logrus.Warnf("Failed to scan package indexes: %v", err)
	}

	for _, index := range indexes {
		n, err := b.loadIndex(index)
		if err != nil {
			stats.Skipped++
			var catErr *models.CatalogError
			reason := "unreadable"
			if errors.As(err, &catErr) && catErr.Type == models.ErrUnresolvedProvenance {
				reason = "unresolved"
			}
			b.opts.Metrics.IndexSkipped(reason)
			logrus.Warnf("Skipping index: %v", err)
			continue
		}
		stats.IndexFiles++
		stats.Candidates += n
		b.opts.Metrics.IndexLoaded()
	}

	installed, err := b.loadStatus()
	if err != nil {
		logrus.Warnf("Failed to load installed packages: %v", err)
	}
	stats.Installed = installed

	stats.Packages = len(b.apps)
	stats.Duration = time.Since(start)
	b.opts.Metrics.ObserveReload(stats.Duration, stats.Packages)

	logrus.Infof("Catalog loaded: %d packages (%d installed) from %d indexes in %s",
		stats.Packages, stats.Installed, stats.IndexFiles, stats.Duration.Round(time.Millisecond))
	return stats
}

// loadIndex appends the compact records of one repository index as candidates
func (b *Builder) loadIndex(index scanner.IndexFile) (int, error) {
	repoURL, ok := b.sources.Resolve(index.Path)
	if !ok {
		return 0, &models.CatalogError{
			Type: models.ErrUnresolvedProvenance,
			Path: index.Path,
			Err:  fmt.Errorf("no configured source matches %q", sources.URLPart(index.Path)),
		}
	}

	records, err := control.ParseFile(index.Path, control.Compact)
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		name := rec.Name()
		if name == "" {
			continue
		}
		pkg := control.ToPkgInfo(rec, repoURL)
		pkg.SourcePath = index.Path
		// Candidates never carry local state
		pkg.Installed, pkg.Held = false, false

		app := b.app(name)
		app.Candidates = append(app.Candidates, pkg)
	}

	logrus.Debugf("Loaded %d records from %s (%s)", len(records), index.Path, repoURL)
	return len(records), nil
}

// loadStatus applies every installed record of the status file in file order
func (b *Builder) loadStatus() (int, error) {
	records, err := control.ParseFile(b.opts.Paths.StatusFile, control.Full)
	if err != nil {
		return 0, err
	}

	var editions []models.PkgInfo
	for _, rec := range records {
		if pkg := b.statusEdition(rec); pkg.Name != "" && pkg.Installed {
			editions = append(editions, pkg)
		}
	}
	b.extendCandidatesOf(editions)

	count := 0
	for _, pkg := range editions {
		if b.applyInstalled(pkg) {
			count++
		}
	}
	return count, nil
}

// extendCandidatesOf extends every candidate of the given packages ahead of
// reconciliation, reading each index once in offset order
func (b *Builder) extendCandidatesOf(editions []models.PkgInfo) {
	bySource := make(map[string][]*models.PkgInfo)
	seen := make(map[string]bool)
	for _, edition := range editions {
		app, ok := b.apps[edition.Name]
		if !ok || seen[edition.Name] {
			continue
		}
		seen[edition.Name] = true
		for i := range app.Candidates {
			pkg := &app.Candidates[i]
			if !pkg.Extended && pkg.SourcePath != "" {
				bySource[pkg.SourcePath] = append(bySource[pkg.SourcePath], pkg)
			}
		}
	}

	for path, pkgs := range bySource {
		sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].ContentOffset < pkgs[j].ContentOffset })
		spans := make([]control.Span, len(pkgs))
		for i, pkg := range pkgs {
			spans[i] = control.Span{Offset: pkg.ContentOffset, Size: pkg.ContentSize}
		}

		records, err := control.ExtractFileSpans(path, spans)
		if err != nil {
			logrus.WithField("file", path).Warnf("Failed to extend candidates: %v", err)
		}
		for i, rec := range records {
			control.Merge(pkgs[i], rec)
		}
		logrus.Debugf("Extended %d candidates from %s", len(records), path)
	}
}

func (b *Builder) statusEdition(rec control.Record) models.PkgInfo {
	pkg := control.ToPkgInfo(rec, "")
	pkg.SourcePath = b.opts.Paths.StatusFile
	pkg.Extended = true
	return pkg
}

// applyInstalled records pkg as the installed edition of its package. An
// existing edition is replaced only when it is empty or pkg is native to the
// host. Reports whether the package was newly marked installed.
func (b *Builder) applyInstalled(pkg models.PkgInfo) bool {
	app := b.app(pkg.Name)
	wasInstalled := app.Installed
	app.Installed = true

	if app.InstalledEdition.Name != "" && pkg.Architecture != b.opts.HostArch {
		logrus.Debugf("Keeping %s over %s", app.InstalledEdition.Identity(), pkg.Identity())
		return !wasInstalled
	}

	b.resolveLocal(app, &pkg)
	app.InstalledEdition = pkg
	b.reconcile(app)
	return !wasInstalled
}

// resolveLocal fills the manifest, update time and desktop entry of pkg
func (b *Builder) resolveLocal(app *models.AppInfo, pkg *models.PkgInfo) {
	listPath, ok := b.listFile(pkg.Name, pkg.Architecture)
	if !ok {
		logrus.WithField("package", pkg.Name).Debug("No file list found")
		app.Desktop = models.DesktopInfo{}
		return
	}

	files, err := readFileList(listPath)
	if err != nil {
		logrus.WithField("package", pkg.Name).Warnf("Failed to read %s: %v", listPath, err)
	}
	pkg.InstalledFiles = files

	if fi, err := os.Stat(listPath); err == nil {
		pkg.UpdatedTime = fi.ModTime()
	}

	var paths []string
	for _, path := range desktop.Candidates(files, pkg.Name) {
		paths = append(paths, b.hostPath(path))
	}
	app.Desktop = b.desktop.ResolveFirst(paths)
}

// listFile locates <name>.list, falling back to <name>:<arch>.list
func (b *Builder) listFile(name, arch string) (string, bool) {
	path := filepath.Join(b.opts.Paths.InfoDir, name+".list")
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	if arch == "" {
		return "", false
	}
	path = filepath.Join(b.opts.Paths.InfoDir, fmt.Sprintf("%s:%s.list", name, arch))
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return "", false
}

// hostPath maps an absolute manifest path under the configured root
func (b *Builder) hostPath(path string) string {
	root := b.opts.Paths.Root
	if root == "" || root == "/" {
		return path
	}
	return filepath.Join(root, path)
}

// reconcile copies download data from the matching candidate onto the
// installed edition. The status file does not carry Size or a URL.
func (b *Builder) reconcile(app *models.AppInfo) {
	installed := &app.InstalledEdition
	for i := range app.Candidates {
		candidate := &app.Candidates[i]
		if candidate.Version != installed.Version && candidate.Version != "" {
			// Compact records carry no version until extended
			continue
		}
		if !candidate.Extended {
			b.extend(candidate)
		}
		if candidate.Version == installed.Version && candidate.Architecture == installed.Architecture {
			installed.Size = candidate.Size
			installed.DownloadURL = candidate.DownloadURL
			return
		}
	}
}

// extend re-reads the full record of a candidate through its offsets
func (b *Builder) extend(pkg *models.PkgInfo) {
	if pkg.Extended || pkg.SourcePath == "" {
		return
	}
	rec, err := control.ExtractFile(pkg.SourcePath, pkg.ContentOffset, pkg.ContentSize)
	if err != nil {
		logrus.WithField("package", pkg.Name).Warnf("Failed to extend candidate: %v", err)
		return
	}
	control.Merge(pkg, rec)
}

// Extend fills every field of the named package's candidates
func (b *Builder) Extend(name string) (models.AppInfo, bool) {
	app, ok := b.apps[name]
	if !ok {
		return models.AppInfo{}, false
	}
	for i := range app.Candidates {
		b.extend(&app.Candidates[i])
	}
	return app.Clone(), true
}

// Refresh re-resolves one package from the status file. A package no longer
// installed is forgotten.
func (b *Builder) Refresh(name string) (models.AppInfo, error) {
	records, err := control.ParseFile(b.opts.Paths.StatusFile, control.Full)
	if err != nil {
		return models.AppInfo{}, err
	}

	var editions []models.PkgInfo
	for _, rec := range records {
		if rec.Name() != name {
			continue
		}
		if pkg := b.statusEdition(rec); pkg.Installed {
			editions = append(editions, pkg)
		}
	}

	if len(editions) == 0 {
		b.Forget(name)
		if app, ok := b.apps[name]; ok {
			return app.Clone(), nil
		}
		return models.AppInfo{Name: name}, nil
	}

	b.extendCandidatesOf(editions)

	app := b.app(name)
	app.Installed = false
	app.InstalledEdition = models.PkgInfo{}
	app.Desktop = models.DesktopInfo{}
	for _, pkg := range editions {
		b.applyInstalled(pkg)
	}
	b.opts.Metrics.SetCatalogSize(len(b.apps))
	return app.Clone(), nil
}

// Forget clears the installed state of a package but keeps its candidates
func (b *Builder) Forget(name string) {
	app, ok := b.apps[name]
	if !ok {
		return
	}
	app.Installed = false
	app.InstalledEdition = models.PkgInfo{}
	app.Desktop = models.DesktopInfo{}
}

// Get returns a copy of one package
func (b *Builder) Get(name string) (models.AppInfo, bool) {
	app, ok := b.apps[name]
	if !ok {
		return models.AppInfo{}, false
	}
	return app.Clone(), true
}

// Snapshot returns a consistent deep copy of the catalog
func (b *Builder) Snapshot() models.CatalogSnapshot {
	snapshot := make(models.CatalogSnapshot, len(b.apps))
	for name, app := range b.apps {
		snapshot[name] = app.Clone()
	}
	return snapshot
}

// Installed returns the installed packages sorted by name
func (b *Builder) Installed() []models.AppInfo {
	return b.filter(func(app *models.AppInfo) bool { return app.Installed })
}

// GUIApps returns installed packages with a visible desktop entry
func (b *Builder) GUIApps() []models.AppInfo {
	return b.filter(func(app *models.AppInfo) bool {
		return app.Installed && app.Desktop.Visible()
	})
}

// All returns every package sorted by name
func (b *Builder) All() []models.AppInfo {
	return b.filter(func(*models.AppInfo) bool { return true })
}

// StatusFile returns the configured dpkg status file path
func (b *Builder) StatusFile() string {
	return b.opts.Paths.StatusFile
}

func (b *Builder) filter(keep func(*models.AppInfo) bool) []models.AppInfo {
	var apps []models.AppInfo
	for _, app := range b.apps {
		if keep(app) {
			apps = append(apps, app.Clone())
		}
	}
	sortApps(apps)
	return apps
}

func (b *Builder) app(name string) *models.AppInfo {
	app, ok := b.apps[name]
	if !ok {
		app = &models.AppInfo{Name: name}
		b.apps[name] = app
	}
	return app
}

func sortApps(apps []models.AppInfo) {
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].Name < apps[j].Name
	})
}

// readFileList reads a dpkg manifest, one absolute path per line
func readFileList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var files []string
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line != "" {
			files = append(files, line)
		}
	}
	return files, s.Err()
}
