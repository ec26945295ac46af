package monitor

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ralt/pkgcatalog/internal/control"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/sirupsen/logrus"
)

const listExt = ".list"

// Monitor tracks dpkg's per-package file lists and the set of installed
// names, and turns changes to either into package events. It holds no
// notification machinery of its own; Watcher drives it.
type Monitor struct {
	infoDir    string
	statusFile string

	watched     map[string]time.Time // list file path -> mtime
	installed   map[string]struct{}
	statusMTime time.Time
}

// New creates a monitor for a dpkg info directory and status file
func New(infoDir, statusFile string) *Monitor {
	return &Monitor{
		infoDir:    infoDir,
		statusFile: statusFile,
		watched:    make(map[string]time.Time),
		installed:  make(map[string]struct{}),
	}
}

// Init records the current state without emitting events
func (m *Monitor) Init() error {
	m.HandleDirChange()

	names, err := InstalledNames(m.statusFile)
	if err != nil {
		return err
	}
	m.installed = names
	m.statusMTime = mtime(m.statusFile)
	return nil
}

// InfoDir returns the watched dpkg info directory
func (m *Monitor) InfoDir() string {
	return m.infoDir
}

// StatusFile returns the watched dpkg status file
func (m *Monitor) StatusFile() string {
	return m.statusFile
}

// Watched returns the watched list files sorted by path
func (m *Monitor) Watched() []string {
	paths := make([]string, 0, len(m.watched))
	for path := range m.watched {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// HandleDirChange rescans the info directory and starts or stops watching
// list files. It reports the paths that appeared and disappeared and never
// emits package events.
func (m *Monitor) HandleDirChange() (added, removed []string) {
	current := scanLists(m.infoDir)

	prev := make(map[string]struct{}, len(m.watched))
	for path := range m.watched {
		prev[path] = struct{}{}
	}
	curr := make(map[string]struct{}, len(current))
	for path := range current {
		curr[path] = struct{}{}
	}

	added, removed = Diff(prev, curr)
	for _, path := range added {
		m.watched[path] = current[path]
	}
	for _, path := range removed {
		delete(m.watched, path)
	}

	if len(added) > 0 || len(removed) > 0 {
		logrus.Debugf("Watching %d list files (+%d -%d)", len(m.watched), len(added), len(removed))
	}
	return added, removed
}

// HandleListChange reports an update for a watched list file that was
// written to
func (m *Monitor) HandleListChange(path string) []models.PackageEvent {
	if _, ok := m.watched[path]; !ok {
		return nil
	}

	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return nil
	}
	m.watched[path] = fi.ModTime()

	return []models.PackageEvent{{Kind: models.PackageUpdated, Name: PackageName(path)}}
}

// HandleStatusChange recomputes the installed set and reports the names
// that appeared and disappeared. An unreadable status file leaves the
// stored set untouched.
func (m *Monitor) HandleStatusChange() ([]models.PackageEvent, error) {
	names, err := InstalledNames(m.statusFile)
	if err != nil {
		return nil, err
	}
	m.statusMTime = mtime(m.statusFile)

	added, removed := Diff(m.installed, names)
	m.installed = names

	events := make([]models.PackageEvent, 0, len(added)+len(removed))
	for _, name := range added {
		events = append(events, models.PackageEvent{Kind: models.PackageInstalled, Name: name})
	}
	for _, name := range removed {
		events = append(events, models.PackageEvent{Kind: models.PackageUninstalled, Name: name})
	}
	return events, nil
}

// Poll compares stored modification times with the disk. It catches the
// rename and replace patterns change notifications can miss.
func (m *Monitor) Poll() []models.PackageEvent {
	m.HandleDirChange()

	var events []models.PackageEvent
	for _, path := range m.Watched() {
		fi, err := os.Stat(path)
		if err != nil || fi.Size() == 0 {
			continue
		}
		if !fi.ModTime().Equal(m.watched[path]) {
			m.watched[path] = fi.ModTime()
			events = append(events, models.PackageEvent{Kind: models.PackageUpdated, Name: PackageName(path)})
		}
	}

	if !mtime(m.statusFile).Equal(m.statusMTime) {
		statusEvents, err := m.HandleStatusChange()
		if err != nil {
			logrus.Warnf("Failed to read %s: %v", m.statusFile, err)
		}
		events = append(events, statusEvents...)
	}
	return events
}

// Diff returns the names only in curr and the names only in prev, sorted
func Diff(prev, curr map[string]struct{}) (added, removed []string) {
	for name := range curr {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range prev {
		if _, ok := curr[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// PackageName derives a package name from a list file path, e.g.
// /var/lib/dpkg/info/libc6:amd64.list -> libc6
func PackageName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), listExt)
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	return name
}

// IsListFile reports whether path names a dpkg file list
func IsListFile(path string) bool {
	return strings.HasSuffix(path, listExt)
}

// InstalledNames returns the names the status file marks installed
func InstalledNames(statusFile string) (map[string]struct{}, error) {
	records, err := control.ParseFile(statusFile, control.Compact)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{})
	for _, rec := range records {
		if rec.Name() == "" {
			continue
		}
		if installed, _ := control.ParseStatus(rec.Get(control.FieldStatus)); installed {
			names[rec.Name()] = struct{}{}
		}
	}
	return names, nil
}

// scanLists returns the non-empty list files of dir with their mtimes
func scanLists(dir string) map[string]time.Time {
	lists := make(map[string]time.Time)

	entries, err := os.ReadDir(dir)
	if err != nil {
		logrus.Warnf("Failed to read %s: %v", dir, err)
		return lists
	}

	for _, entry := range entries {
		if entry.IsDir() || !IsListFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		lists[filepath.Join(dir, entry.Name())] = info.ModTime()
	}
	return lists
}

func mtime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
