package monitor

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultPollInterval = 30 * time.Second
)

// Watcher drives a Monitor from fsnotify notifications on the info
// directory and the status file's directory, plus a periodic Poll.
type Watcher struct {
	Events <-chan models.PackageEvent // Read-only external channel

	monitor      *Monitor
	debounce     time.Duration
	pollInterval time.Duration

	events  chan models.PackageEvent
	quit    chan struct{}
	done    chan struct{}
	watcher *fsnotify.Watcher
	once    sync.Once
}

// NewWatcher creates a watcher for m. Zero intervals select the defaults.
func NewWatcher(m *Monitor, debounce, pollInterval time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ch := make(chan models.PackageEvent, 64)
	return &Watcher{
		Events:       ch,
		monitor:      m,
		debounce:     debounce,
		pollInterval: pollInterval,
		events:       ch,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		watcher:      fw,
	}, nil
}

// Start records the initial state and begins watching
func (w *Watcher) Start() error {
	if err := w.monitor.Init(); err != nil {
		logrus.Warnf("Failed to read initial package state: %v", err)
	}

	if err := w.watcher.Add(w.monitor.InfoDir()); err != nil {
		return err
	}
	// dpkg replaces the status file by rename, so watch its directory
	if err := w.watcher.Add(filepath.Dir(w.monitor.StatusFile())); err != nil {
		return err
	}

	go w.loop()
	return nil
}

// Stop closes the watcher and the Events channel
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.quit)
		w.watcher.Close()
		<-w.done
		close(w.events)
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	var (
		dirPending    time.Time
		statusPending time.Time
	)
	listPending := make(map[string]time.Time)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-w.quit:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			now := time.Now()

			switch {
			case event.Name == w.monitor.StatusFile():
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					statusPending = now
				}
			case filepath.Dir(event.Name) == w.monitor.InfoDir() && IsListFile(event.Name):
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					dirPending = now
				}
				// dpkg rewrites a list by renaming <pkg>.list-new over it,
				// which arrives as Create on an already watched path
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					listPending[event.Name] = now
				}
				// A pending rescan settles with the lists it covers
				if !dirPending.IsZero() {
					dirPending = now
				}
			}

		case <-ticker.C:
			now := time.Now()
			// Lists go before the rescan so a newly created list is not
			// yet watched and reports no update
			for path, t := range listPending {
				if now.Sub(t) >= w.debounce {
					delete(listPending, path)
					if !w.emit(w.monitor.HandleListChange(path)) {
						return
					}
				}
			}
			if !dirPending.IsZero() && now.Sub(dirPending) >= w.debounce {
				dirPending = time.Time{}
				w.monitor.HandleDirChange()
			}
			if !statusPending.IsZero() && now.Sub(statusPending) >= w.debounce {
				statusPending = time.Time{}
				events, err := w.monitor.HandleStatusChange()
				if err != nil {
					logrus.Warnf("Failed to read %s: %v", w.monitor.StatusFile(), err)
				}
				if !w.emit(events) {
					return
				}
			}

		case <-poll.C:
			if !w.emit(w.monitor.Poll()) {
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.Warnf("File watch error: %v", err)
		}
	}
}

// emit delivers events, giving up when the watcher is stopped
func (w *Watcher) emit(events []models.PackageEvent) bool {
	for _, ev := range events {
		logrus.WithField("package", ev.Name).Debugf("Detected %s", ev.Kind)
		select {
		case w.events <- ev:
		case <-w.quit:
			return false
		}
	}
	return true
}
