package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/config"
	"github.com/canonical/cos-configuration-k8s-operator/internal/publisher"
	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"
)

// Manager owns the reconcile loop: it serializes triggers from the ticker,
// the repo watcher, configuration changes and the manual sync action into
// one pass at a time, coalescing anything that arrives while a pass is in
// flight into a single follow-up pass.
type Manager struct {
	controller *Controller
	pub        *publisher.Publisher
	queue      *triggerQueue
	watcher    *repoWatcher

	cfgMu sync.RWMutex
	cfg   config.Config

	// channelURLs tracks which store URL each kind is currently joined to.
	channelURLs map[publisher.Kind]string

	// passMu is the single active-pass lock shared by the worker and the
	// synchronous manual sync action.
	passMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewManager creates a manager around the given controller.
func NewManager(cfg config.Config, controller *Controller, pub *publisher.Publisher) *Manager {
	m := &Manager{
		controller:  controller,
		pub:         pub,
		queue:       newTriggerQueue(),
		cfg:         cfg,
		channelURLs: make(map[publisher.Kind]string),
	}
	m.watcher = newRepoWatcher(cfg.Sync.Root, 0, func() {
		m.TriggerReconcile(SourceFSWatch)
	})
	return m
}

// Start begins the reconcile loop and schedules the initial pass.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	m.applyChannels(m.snapshot())

	if err := m.watcher.Start(m.ctx); err != nil {
		logging.Warn("ReconcileManager", "Repo watcher unavailable, relying on ticks: %v", err)
	}

	m.wg.Add(2)
	go m.worker()
	go m.ticker()

	// Converge immediately on startup.
	m.TriggerReconcile(SourceTick)

	logging.Info("ReconcileManager", "Started (tick interval %s)", m.snapshot().Sync.Interval)
	return nil
}

// Stop shuts the reconcile loop down. An in-flight pass completes first.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	logging.Info("ReconcileManager", "Stopping...")
	if m.cancel != nil {
		m.cancel()
	}
	m.queue.Shutdown()
	if err := m.watcher.Stop(); err != nil {
		logging.Error("ReconcileManager", err, "Error stopping repo watcher")
	}
	m.wg.Wait()
	logging.Info("ReconcileManager", "Stopped")
}

// TriggerReconcile queues a reconcile pass. Triggers arriving while a pass
// is running are coalesced into a single rerun.
func (m *Manager) TriggerReconcile(source TriggerSource) {
	m.queue.Add(NewTrigger(source))
}

// SyncNow runs a manual re-sync pass synchronously: it waits for any
// in-flight pass, forces a one-shot sync, and reconciles. It fails fast when
// no source location is configured.
func (m *Manager) SyncNow(ctx context.Context) error {
	cfg := m.snapshot()
	if !cfg.Git.Configured() {
		return &config.ValidationError{Field: "git.repo", Message: "not configured - nothing to sync"}
	}

	m.passMu.Lock()
	defer m.passMu.Unlock()
	err := m.controller.Reconcile(ctx, cfg, NewTrigger(SourceManual))
	m.watcher.Rearm()
	return err
}

// UpdateConfig applies a new configuration snapshot. Channel changes re-join
// the affected kinds and force their republication; any other change in the
// source spec or subpaths triggers a reconcile pass.
func (m *Manager) UpdateConfig(cfg config.Config) {
	m.cfgMu.Lock()
	old := m.cfg
	m.cfg = cfg
	m.cfgMu.Unlock()

	channelsChanged := m.applyChannels(cfg)

	switch {
	case channelsChanged:
		m.TriggerReconcile(SourceChannel)
	case old.Git != cfg.Git || old.Paths != cfg.Paths:
		m.TriggerReconcile(SourceConfig)
	}
}

// Status returns the controller's status snapshot.
func (m *Manager) Status() Status {
	return m.controller.Status()
}

// Metrics returns the reconcile counters.
func (m *Manager) Metrics() Snapshot {
	return m.controller.metrics.Snapshot()
}

func (m *Manager) snapshot() config.Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// applyChannels joins/leaves downstream channels to match the configured
// URLs, returning whether anything changed.
func (m *Manager) applyChannels(cfg config.Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	urls := map[publisher.Kind]string{
		publisher.KindMetricRules: cfg.Channels.PrometheusURL,
		publisher.KindLogRules:    cfg.Channels.LokiURL,
		publisher.KindDashboards:  cfg.Channels.GrafanaURL,
	}

	changed := false
	for kind, url := range urls {
		if m.channelURLs[kind] == url {
			continue
		}
		changed = true
		m.channelURLs[kind] = url
		m.controller.ResetKind(kind)
		if url == "" {
			m.pub.Leave(kind)
		} else {
			m.pub.Join(kind, publisher.NewHTTPChannel(url))
		}
	}
	return changed
}

// worker drains the trigger queue, one pass at a time.
func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		trigger, ok := m.queue.Get(m.ctx)
		if !ok {
			logging.Debug("ReconcileManager", "Worker shutting down")
			return
		}
		m.runPass(trigger)
	}
}

func (m *Manager) runPass(trigger Trigger) {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	// Errors are already recorded in the controller's status and metrics;
	// pass-level failures degrade to retry-on-next-trigger.
	_ = m.controller.Reconcile(m.ctx, m.snapshot(), trigger)
	m.watcher.Rearm()
}

// ticker enqueues the scheduled reconcile trigger.
func (m *Manager) ticker() {
	defer m.wg.Done()

	interval := m.snapshot().Sync.Interval
	if interval <= 0 {
		interval = config.DefaultSyncInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			m.TriggerReconcile(SourceTick)
		}
	}
}
