package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ralt/pkgcatalog/internal/catalog"
	"github.com/ralt/pkgcatalog/internal/metrics"
	"github.com/ralt/pkgcatalog/internal/monitor"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load the catalog and follow package changes",
		Long: `Watch loads the catalog, then follows the dpkg info directory and
status file, applying each install, update and removal to the affected
package only. Prometheus metrics are served when a listen address is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("metrics-listen") {
				a.cfg.MetricsListen = listen
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runWatch(ctx, a)
		},
	}

	cmd.Flags().StringVar(&listen, "metrics-listen", "", "Address to serve Prometheus metrics on, e.g. :9464")
	return cmd
}

func runWatch(ctx context.Context, a *app) error {
	m := metrics.New()

	svc, stop, err := a.startService(ctx, m)
	if err != nil {
		return err
	}
	defer stop()

	mon := monitor.New(a.cfg.Paths.InfoDir, a.cfg.Paths.StatusFile)
	watcher, err := monitor.NewWatcher(mon, a.cfg.Monitor.Debounce, a.cfg.Monitor.PollInterval)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()
	logrus.Infof("Watching %s and %s", a.cfg.Paths.InfoDir, a.cfg.Paths.StatusFile)

	events, unsubscribe := svc.Subscribe(64)
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := svc.Consume(ctx, watcher.Events)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				logEvent(ev)
			}
		}
	})

	if a.cfg.MetricsListen != "" {
		server := &http.Server{
			Addr:              a.cfg.MetricsListen,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logrus.Infof("Serving metrics on %s", a.cfg.MetricsListen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logrus.Info("Stopped watching")
	return err
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func logEvent(ev catalog.Event) {
	switch ev.Kind {
	case catalog.Installed, catalog.Updated, catalog.Uninstalled:
		entry := logrus.WithField("package", ev.Name)
		if ev.App.Installed {
			entry = entry.WithField("version", ev.App.InstalledEdition.Version)
		}
		entry.Infof("Catalog %s", ev.Kind)
	case catalog.RunningStatusChanged:
		logrus.Debugf("Catalog status: %s", ev.Status)
	case catalog.LoadFinished:
		logrus.Debugf("Catalog reloaded: %d packages", ev.Stats.Packages)
	}
}
