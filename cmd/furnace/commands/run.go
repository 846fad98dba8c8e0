package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/forge/furnace-sub000/internal/addon"
	"github.com/forge/furnace-sub000/internal/codeunit"
	"github.com/forge/furnace-sub000/internal/config"
	"github.com/forge/furnace-sub000/internal/furnace"
	"github.com/forge/furnace-sub000/internal/lifecycle"
	"github.com/forge/furnace-sub000/internal/logging"
	"github.com/forge/furnace-sub000/internal/metrics"
	"github.com/forge/furnace-sub000/internal/repository"
	"github.com/forge/furnace-sub000/internal/tracing"
)

var (
	shutdownTimeout time.Duration
	resourceOnly    bool
	watchConfig     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the addon container",
	Long: `Run loads the configuration, mounts its repositories, starts every
enabled addon and keeps the container in sync with the repositories until
interrupted.`,
	RunE: runFurnace,
}

func init() {
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second,
		"Grace period for stopping the container and its components")
	runCmd.Flags().BoolVar(&resourceOnly, "resource-only-fallback", true,
		"Start addons without a compiled-in code unit as resource-only addons")
	runCmd.Flags().BoolVar(&watchConfig, "watch-config", true,
		"Reload the configuration file on change and mount added repositories and views")
}

func runFurnace(cmd *cobra.Command, args []string) error {
	logger := logging.GetLogger("main")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	strategy, err := cfg.Strategy()
	if err != nil {
		return err
	}

	logger.Info("Starting furnace v%s", Version)

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewMetrics(registry)
	}

	tracingProvider, err := tracing.NewProvider(cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	provider := codeunit.NewFactoryProvider(nil)
	if resourceOnly {
		provider = provider.WithFallback(codeunit.ResourceOnly)
	}

	container, err := furnace.New(furnace.Options{
		RuntimeVersion: cfg.Runtime(),
		Compatibility:  strategy,
		Provider:       provider,
		Workers:        cfg.Workers,
		StartTimeout:   cfg.StartTimeout,
		StopTimeout:    cfg.StopTimeout,
		ScanInterval:   cfg.ScanInterval,
		Metrics:        m,
		Tracer:         tracingProvider.Tracer("github.com/forge/furnace-sub000/internal/furnace"),
	})
	if err != nil {
		return err
	}

	mounted := newMounts(container, cfg.WatchDebounce)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := mounted.apply(ctx, cfg); err != nil {
		return err
	}

	manager := lifecycle.NewManager()
	manager.SetShutdownTimeout(shutdownTimeout)

	containerComponent := &lifecycle.Func{
		ComponentName: "container",
		OnStart:       container.Start,
		OnStop:        container.Stop,
	}
	if err := manager.Register(tracingProvider); err != nil {
		return err
	}
	if err := manager.Register(containerComponent, tracingProvider); err != nil {
		return err
	}
	if err := manager.Register(mounted, containerComponent); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := manager.Register(metricsServer(cfg.Metrics.Address, registry)); err != nil {
			return err
		}
	}
	if watchConfig {
		watcher, err := config.NewWatcher(configPath, cfg.WatchDebounce, func(next *config.Config) error {
			return mounted.apply(ctx, next)
		})
		if err != nil {
			return err
		}
		component := &lifecycle.Func{
			ComponentName: "config watcher",
			OnStart:       watcher.Start,
			OnStop:        func(context.Context) error { return watcher.Stop() },
		}
		if err := manager.Register(component, mounted); err != nil {
			return err
		}
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}
	logger.Info("Furnace started with %d repositories", len(container.Repositories()))

	<-ctx.Done()
	logger.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// mounts owns the directory repositories of a running container and their
// watchers. It is a lifecycle.Component; repositories mounted after Start
// are watched right away.
type mounts struct {
	container *furnace.Furnace
	debounce  time.Duration
	logger    *logging.Logger

	mu       sync.Mutex
	repos    map[string]*repository.Directory
	watchers []*repository.Watcher
	watchCtx context.Context
}

func newMounts(container *furnace.Furnace, debounce time.Duration) *mounts {
	return &mounts{
		container: container,
		debounce:  debounce,
		logger:    logging.GetLogger("main.mounts"),
		repos:     make(map[string]*repository.Directory),
	}
}

// apply mounts the repositories and views of cfg that are not mounted yet.
// Removing or changing existing entries requires a restart.
func (m *mounts) apply(ctx context.Context, cfg *config.Config) error {
	added := false
	for _, rc := range cfg.Repositories {
		ok, err := m.mount(rc)
		if err != nil {
			return err
		}
		added = added || ok
	}

	for _, vc := range cfg.Views {
		repos, err := m.lookup(vc.Repositories)
		if err != nil {
			return fmt.Errorf("view %q: %w", vc.Name, err)
		}
		if _, err := m.container.AddView(ctx, vc.Name, repos...); err != nil {
			return err
		}
	}

	if added && m.container.Status() == furnace.Started {
		return m.container.ForceUpdate(ctx)
	}
	return nil
}

func (m *mounts) mount(rc config.RepositoryConfig) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.repos[rc.Name]; ok {
		if existing.Root() != rc.Path {
			m.logger.Warn("Repository %q moved to %s; restart to apply", rc.Name, rc.Path)
		}
		return false, nil
	}

	repo, err := repository.NewDirectory(rc.Name, rc.Path)
	if err != nil {
		return false, err
	}
	watcher, err := repository.WatchDirectory(repo, m.debounce)
	if err != nil {
		return false, err
	}
	if m.watchCtx != nil {
		if err := watcher.Start(m.watchCtx); err != nil {
			return false, err
		}
	}
	if err := m.container.AddRepository(repo); err != nil {
		_ = watcher.Stop()
		return false, err
	}

	m.repos[rc.Name] = repo
	m.watchers = append(m.watchers, watcher)
	m.logger.Info("Mounted repository %q at %s", rc.Name, rc.Path)
	return true, nil
}

func (m *mounts) lookup(names []string) ([]addon.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repos := make([]addon.Repository, 0, len(names))
	for _, name := range names {
		repo, ok := m.repos[name]
		if !ok {
			return nil, fmt.Errorf("repository %q is not mounted", name)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

func (m *mounts) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchCtx = ctx
	for _, w := range m.watchers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *mounts) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs error
	for _, w := range m.watchers {
		errs = multierr.Append(errs, w.Stop())
	}
	m.watchCtx = nil
	return errs
}

func (m *mounts) Name() string { return "repository watchers" }

// metricsServer serves the registry on addr under /metrics.
func metricsServer(addr string, registry *prometheus.Registry) lifecycle.Component {
	logger := logging.GetLogger("main.metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	return &lifecycle.Func{
		ComponentName: "metrics server",
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.ErrorWithErr("Metrics server failed", err)
				}
			}()
			logger.Info("Serving metrics on %s/metrics", ln.Addr())
			return nil
		},
		OnStop: srv.Shutdown,
	}
}
