// Package app bootstraps the daemon: it loads configuration, wires the sync
// supervisor, publisher, reconcile manager and admin server together, and
// runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/canonical/cos-configuration-k8s-operator/internal/config"
	"github.com/canonical/cos-configuration-k8s-operator/internal/gitsync"
	"github.com/canonical/cos-configuration-k8s-operator/internal/publisher"
	"github.com/canonical/cos-configuration-k8s-operator/internal/reconciler"
	"github.com/canonical/cos-configuration-k8s-operator/internal/server"
	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"

	"golang.org/x/sync/errgroup"
)

const subsystem = "Bootstrap"

// Options are the command-line level settings of the daemon.
type Options struct {
	// ConfigPath is the configuration file to load. Missing file means
	// defaults; the daemon then idles until configured.
	ConfigPath string

	// Debug enables verbose logging.
	Debug bool

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// Application holds the wired components of a running daemon.
type Application struct {
	cfg        config.Config
	configPath string
	supervisor *gitsync.Supervisor
	manager    *reconciler.Manager
	admin      *server.Server
}

// NewApplication loads configuration and wires all components. Nothing is
// started yet; Run does that.
func NewApplication(opts Options) (*Application, error) {
	level := logging.LevelInfo
	if opts.Debug {
		level = logging.LevelDebug
	}
	output := opts.LogOutput
	if output == nil {
		output = os.Stderr
	}
	logging.Init(level, output)

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		logging.Error(subsystem, err, "Failed to load configuration from %s", opts.ConfigPath)
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if verrs := config.Validate(cfg); verrs.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", verrs)
	}

	supervisor := gitsync.NewSupervisor(
		cfg.Sync.GitSyncBinary,
		cfg.Sync.Root,
		cfg.Sync.Interval,
		cfg.Sync.OneShotTimeout,
	)
	pub := publisher.New()
	controller := reconciler.NewController(supervisor, pub, reconciler.NewMetrics())
	manager := reconciler.NewManager(cfg, controller, pub)

	return &Application{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		supervisor: supervisor,
		manager:    manager,
		admin:      server.New(cfg.Server, manager),
	}, nil
}

// reloadConfig re-reads the configuration file and applies it to the running
// manager. Source, subpath and channel changes take effect on the next pass;
// an invalid file leaves the running configuration untouched.
func (a *Application) reloadConfig() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("reloading configuration: %w", err)
	}
	if verrs := config.Validate(cfg); verrs.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", verrs)
	}

	a.cfg = cfg
	a.manager.UpdateConfig(cfg)
	logging.Info(subsystem, "Configuration reloaded from %s", a.configPath)
	return nil
}

// Manager returns the reconcile manager. Exposed for tests.
func (a *Application) Manager() *reconciler.Manager {
	return a.manager
}

// Run starts the reconcile loop and the admin server and blocks until the
// context is cancelled or a termination signal arrives.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("starting reconcile manager: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.admin.Run(gctx)
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := a.reloadConfig(); err != nil {
					logging.Warn(subsystem, "Configuration not reloaded: %v", err)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		a.manager.Stop()
		a.supervisor.Stop()
		return nil
	})

	logging.Info(subsystem, "Running (admin on %s)", a.admin.Addr())
	err := g.Wait()
	logging.Info(subsystem, "Shut down")
	return err
}
