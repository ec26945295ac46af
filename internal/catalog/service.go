package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/ralt/pkgcatalog/internal/metrics"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/sirupsen/logrus"
)

// EventKind identifies a notification sent to subscribers
type EventKind int

const (
	LoadFinished EventKind = iota
	SearchFinished
	Installed
	Updated
	Uninstalled
	RunningStatusChanged
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case LoadFinished:
		return "load_finished"
	case SearchFinished:
		return "search_finished"
	case Installed:
		return "installed"
	case Updated:
		return "updated"
	case Uninstalled:
		return "uninstalled"
	case RunningStatusChanged:
		return "running_status_changed"
	default:
		return "unknown"
	}
}

// Event is a notification from the catalog owner
type Event struct {
	Kind    EventKind
	Name    string               // package name for Installed, Updated, Uninstalled
	App     models.AppInfo       // package state after the change
	Results []models.AppInfo     // SearchFinished
	Query   string               // SearchFinished
	Stats   LoadStats            // LoadFinished
	Status  models.RunningStatus // RunningStatusChanged
}

// Service owns a Builder on a single goroutine. Every operation is a closure
// executed serially by Run; callers wait for its reply.
type Service struct {
	builder  *Builder
	metrics  *metrics.Metrics
	requests chan func()
	stopped  chan struct{}

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewService creates a service around builder. Run must be started before
// any other method returns.
func NewService(builder *Builder, m *metrics.Metrics) *Service {
	return &Service{
		builder:  builder,
		metrics:  m,
		requests: make(chan func()),
		stopped:  make(chan struct{}),
		subs:     make(map[int]chan Event),
	}
}

// Run executes requests until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.requests:
			fn()
		}
	}
}

// do submits fn and waits for it to finish. Cancelling ctx abandons the
// wait; a request that has started still runs to completion.
func (s *Service) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	request := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.requests <- request:
	case <-s.stopped:
		return &models.CatalogError{Type: models.ErrClosed, Err: fmt.Errorf("catalog service stopped")}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a listener with a buffer of size buf. Events that do
// not fit are dropped. The returned function unsubscribes and closes the
// channel.
func (s *Service) Subscribe(buf int) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, buf)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Service) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			logrus.Warnf("Dropping %s event for subscriber %d: buffer full", ev.Kind, id)
		}
	}
}

// Reload rebuilds the catalog. Subscribers see the status go busy, then a
// LoadFinished event, then the status return to normal.
func (s *Service) Reload(ctx context.Context) (LoadStats, error) {
	var stats LoadStats
	err := s.do(ctx, func() {
		s.publish(Event{Kind: RunningStatusChanged, Status: models.StatusBusy})
		stats = s.builder.Load(context.Background())
		s.publish(Event{Kind: LoadFinished, Stats: stats})
		s.publish(Event{Kind: RunningStatusChanged, Status: models.StatusNormal})
	})
	return stats, err
}

// Search returns the packages matching text, sorted by name
func (s *Service) Search(ctx context.Context, text string) ([]models.AppInfo, error) {
	var results []models.AppInfo
	err := s.do(ctx, func() {
		results = Search(s.builder.All(), text)
		s.publish(Event{Kind: SearchFinished, Query: text, Results: results})
	})
	return results, err
}

// Snapshot returns a consistent copy of the whole catalog
func (s *Service) Snapshot(ctx context.Context) (models.CatalogSnapshot, error) {
	var snapshot models.CatalogSnapshot
	err := s.do(ctx, func() {
		snapshot = s.builder.Snapshot()
	})
	return snapshot, err
}

// Get returns one package. A name absent from the catalog is ErrNotFound.
func (s *Service) Get(ctx context.Context, name string) (models.AppInfo, error) {
	var (
		app models.AppInfo
		ok  bool
	)
	if err := s.do(ctx, func() {
		app, ok = s.builder.Get(name)
	}); err != nil {
		return models.AppInfo{}, err
	}
	if !ok {
		return models.AppInfo{}, notFound(name)
	}
	return app, nil
}

// Extend returns one package with every candidate fully parsed
func (s *Service) Extend(ctx context.Context, name string) (models.AppInfo, error) {
	var (
		app models.AppInfo
		ok  bool
	)
	if err := s.do(ctx, func() {
		app, ok = s.builder.Extend(name)
	}); err != nil {
		return models.AppInfo{}, err
	}
	if !ok {
		return models.AppInfo{}, notFound(name)
	}
	return app, nil
}

// Installed returns the installed packages
func (s *Service) Installed(ctx context.Context) ([]models.AppInfo, error) {
	var apps []models.AppInfo
	err := s.do(ctx, func() {
		apps = s.builder.Installed()
	})
	return apps, err
}

// GUIApps returns the installed packages that have a visible launcher
func (s *Service) GUIApps(ctx context.Context) ([]models.AppInfo, error) {
	var apps []models.AppInfo
	err := s.do(ctx, func() {
		apps = s.builder.GUIApps()
	})
	return apps, err
}

// All returns every package in the catalog
func (s *Service) All(ctx context.Context) ([]models.AppInfo, error) {
	var apps []models.AppInfo
	err := s.do(ctx, func() {
		apps = s.builder.All()
	})
	return apps, err
}

// HandlePackageEvent applies one monitor event to the affected package only
func (s *Service) HandlePackageEvent(ctx context.Context, ev models.PackageEvent) (models.AppInfo, error) {
	var (
		app    models.AppInfo
		genErr error
	)
	err := s.do(ctx, func() {
		log := logrus.WithField("package", ev.Name)

		var kind EventKind
		switch ev.Kind {
		case models.PackageInstalled:
			kind = Installed
			app, genErr = s.builder.Refresh(ev.Name)
		case models.PackageUpdated:
			kind = Updated
			app, genErr = s.builder.Refresh(ev.Name)
		case models.PackageUninstalled:
			kind = Uninstalled
			s.builder.Forget(ev.Name)
			app, _ = s.builder.Get(ev.Name)
			app.Name = ev.Name
		default:
			genErr = fmt.Errorf("unknown package event %d", ev.Kind)
			return
		}
		if genErr != nil {
			log.Warnf("Failed to apply %s event: %v", ev.Kind, genErr)
			return
		}

		s.metrics.PackageEvent(ev.Kind.String())
		log.Infof("Package %s", ev.Kind)
		s.publish(Event{Kind: kind, Name: ev.Name, App: app})
	})
	if err != nil {
		return models.AppInfo{}, err
	}
	return app, genErr
}

// Consume applies events until the channel closes or ctx is cancelled
func (s *Service) Consume(ctx context.Context, events <-chan models.PackageEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := s.HandlePackageEvent(ctx, ev); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

func notFound(name string) error {
	return &models.CatalogError{Type: models.ErrNotFound, Path: name, Err: fmt.Errorf("package not in catalog")}
}
