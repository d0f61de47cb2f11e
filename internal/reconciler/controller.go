package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/canonical/cos-configuration-k8s-operator/internal/config"
	"github.com/canonical/cos-configuration-k8s-operator/internal/digest"
	"github.com/canonical/cos-configuration-k8s-operator/internal/gitsync"
	"github.com/canonical/cos-configuration-k8s-operator/internal/loader"
	"github.com/canonical/cos-configuration-k8s-operator/internal/publisher"
	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"

	"github.com/google/uuid"
)

const subsystem = "Reconciler"

// Supervisor is the control surface of the external sync agent the
// controller depends on.
type Supervisor interface {
	EnsureRunning(spec config.SourceSpec) error
	Stop()
	TriggerOneShot(ctx context.Context, spec config.SourceSpec) (string, error)
	Status() gitsync.Result
	CurrentRevision() string
	Version(ctx context.Context) string
	RemoveRepo() error
}

// Controller drives one reconcile pass at a time: it converges the sync
// agent, detects content change, loads and validates the content, and
// publishes the delta downstream. Callers must serialize passes; the Manager
// does so through its depth-one trigger queue.
type Controller struct {
	supervisor Supervisor
	pub        *publisher.Publisher
	metrics    *Metrics

	mu             sync.Mutex
	state          WorkloadState
	everConfigured bool
	agentVersion   string
	kinds          map[publisher.Kind]*kindState
	lastStatus     Status
}

// NewController creates a controller in the Uninitialized state.
func NewController(supervisor Supervisor, pub *publisher.Publisher, metrics *Metrics) *Controller {
	kinds := make(map[publisher.Kind]*kindState)
	for _, kind := range publisher.Kinds() {
		kinds[kind] = &kindState{}
	}
	return &Controller{
		supervisor: supervisor,
		pub:        pub,
		metrics:    metrics,
		state:      StateUninitialized,
		kinds:      kinds,
	}
}

// State returns the current workload state.
func (c *Controller) State() WorkloadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the last pass outcome.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.lastStatus
	status.State = c.state
	status.Kinds = make(map[publisher.Kind]KindStatus, len(c.kinds))
	for kind, ks := range c.kinds {
		status.Kinds[kind] = KindStatus{
			PublishedCount:    c.pub.PublishedCount(kind),
			LastAppliedDigest: ks.lastApplied.String(),
			Deferred:          ks.deferred,
			Errors:            append([]string(nil), ks.errors...),
		}
	}
	status.LastSync = c.supervisor.Status()
	status.Revision = c.supervisor.CurrentRevision()
	status.GitSyncVersion = c.agentVersion
	return status
}

// ResetKind forgets the last-applied digest for a kind, forcing the next
// pass to reload and republish it. Used when a kind's channel is joined,
// left, or re-pointed at a different store.
func (c *Controller) ResetKind(kind publisher.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[kind].lastApplied = ""
}

// Reconcile runs one complete pass for the given trigger against a config
// snapshot. Per-file problems are recorded as warnings in the status; the
// returned error reports pass-level failures (sync failed, store
// unreachable) that will be retried on the next trigger.
func (c *Controller) Reconcile(ctx context.Context, cfg config.Config, trigger Trigger) error {
	passID := uuid.New().String()[:8]
	logging.Debug(subsystem, "Pass %s starting (trigger: %s)", passID, trigger.Source)
	c.metrics.PassStarted(trigger.Source)

	err := c.reconcile(ctx, cfg, trigger, passID)

	c.mu.Lock()
	c.lastStatus.LastPassID = passID
	c.lastStatus.LastPassTime = trigger.Timestamp
	if err != nil {
		c.lastStatus.LastPassError = err.Error()
	} else {
		c.lastStatus.LastPassError = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.PassFailed()
		logging.Warn(subsystem, "Pass %s failed: %v", passID, err)
	} else {
		c.metrics.PassSucceeded()
		logging.Debug(subsystem, "Pass %s complete", passID)
	}
	return err
}

func (c *Controller) reconcile(ctx context.Context, cfg config.Config, trigger Trigger, passID string) error {
	spec := cfg.Git

	if !spec.Configured() {
		return c.converge(ctx)
	}

	// Manual re-sync forces a one-shot cycle before evaluating content.
	if trigger.Source == SourceManual {
		if _, err := c.supervisor.TriggerOneShot(ctx, spec); err != nil {
			c.enterConfigured("Sync failed: " + err.Error())
			return fmt.Errorf("one-shot sync: %w", err)
		}
	}

	c.probeAgentVersion(ctx)

	if err := c.supervisor.EnsureRunning(spec); err != nil {
		c.enterConfigured("Sync agent failed to start: " + err.Error())
		return fmt.Errorf("starting sync agent: %w", err)
	}

	syncResult := c.supervisor.Status()
	if !syncResult.Success && syncResult.Err != "" {
		// Fail-static: keep previously published content untouched.
		c.enterConfigured("Sync failed: " + syncResult.Err)
		return fmt.Errorf("sync failed: %s", syncResult.Err)
	}

	if c.supervisor.CurrentRevision() == gitsync.RevisionUnknown {
		// Nothing mirrored yet; publishing now would wrongly project an
		// empty tree. Wait for the agent's first completed cycle.
		c.enterConfigured("No revision yet - confirm config is valid")
		logging.Info(subsystem, "Pass %s: no synced revision yet, deferring", passID)
		return nil
	}

	c.enterConfigured("")
	return c.publishAll(ctx, cfg, passID)
}

// converge handles the non-configured desired state: stop the agent, remove
// the mirror, clear all downstream kinds.
func (c *Controller) converge(ctx context.Context) error {
	c.supervisor.Stop()

	var firstErr error
	for _, kind := range publisher.Kinds() {
		if err := c.pub.Clear(ctx, kind); err != nil {
			logging.Warn(subsystem, "Clearing %s: %v", kind, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("clearing %s: %w", kind, err)
			}
		}
	}
	if firstErr != nil {
		// Retried on the next trigger; do not transition while downstream
		// content may remain.
		return firstErr
	}

	if err := c.supervisor.RemoveRepo(); err != nil {
		logging.Warn(subsystem, "Removing repo folder: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ks := range c.kinds {
		ks.lastApplied = ""
		ks.deferred = false
		ks.errors = nil
	}
	if c.everConfigured {
		c.state = StateIdle
		c.lastStatus.Message = "Source location unset - sync agent stopped"
	} else {
		c.state = StateUninitialized
		c.lastStatus.Message = "Config options missing - set git.repo"
	}
	return nil
}

// probeAgentVersion asks the sync binary for its version once and caches it
// for the status surface.
func (c *Controller) probeAgentVersion(ctx context.Context) {
	c.mu.Lock()
	known := c.agentVersion != ""
	c.mu.Unlock()
	if known {
		return
	}

	version := c.supervisor.Version(ctx)
	if version == "" {
		return
	}
	c.mu.Lock()
	c.agentVersion = version
	c.mu.Unlock()
	logging.Debug(subsystem, "Sync agent version %s", version)
}

func (c *Controller) enterConfigured(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateConfigured
	c.everConfigured = true
	c.lastStatus.Message = message
}

// publishAll runs the load-and-publish step for every kind. A failure in one
// kind never blocks the others; each kind's last-applied digest advances only
// when its publish completed.
func (c *Controller) publishAll(ctx context.Context, cfg config.Config, passID string) error {
	root := cfg.RepoDir()

	type kindSpec struct {
		kind    publisher.Kind
		subpath string
		load    func(root, subpath string) ([]loader.Record, []loader.FileError, error)
	}
	specs := []kindSpec{
		{publisher.KindMetricRules, cfg.Paths.PrometheusAlertRulesPath, loader.LoadRules},
		{publisher.KindLogRules, cfg.Paths.LokiAlertRulesPath, loader.LoadRules},
		{publisher.KindDashboards, cfg.Paths.GrafanaDashboardsPath, loader.LoadDashboards},
	}

	var firstErr error
	record := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, ks := range specs {
		state := c.kindState(ks.kind)

		dig, err := digest.Tree(root, ks.subpath)
		if err != nil {
			// ContentReadError: affects this kind only.
			c.setKindOutcome(ks.kind, state.lastApplied, false, []string{err.Error()})
			c.metrics.KindFailed(ks.kind)
			record(fmt.Errorf("hashing %s: %w", ks.kind, err))
			continue
		}

		if dig.Equal(state.lastApplied) && !state.deferred {
			logging.Debug(subsystem, "Pass %s: %s content unchanged, skipping", passID, ks.kind)
			c.metrics.KindSkipped(ks.kind)
			continue
		}

		records, fileErrors, err := ks.load(root, ks.subpath)
		if err != nil {
			c.setKindOutcome(ks.kind, state.lastApplied, false, []string{err.Error()})
			c.metrics.KindFailed(ks.kind)
			record(fmt.Errorf("loading %s: %w", ks.kind, err))
			continue
		}

		delta, dupErrors, err := c.pub.Publish(ctx, ks.kind, records)
		warnings := errorStrings(fileErrors, dupErrors)
		switch {
		case errors.Is(err, publisher.ErrChannelNotJoined):
			logging.Debug(subsystem, "Pass %s: %s channel not joined, deferring", passID, ks.kind)
			c.setKindOutcome(ks.kind, state.lastApplied, true, warnings)
		case err != nil:
			// PublishFailure: digest does not advance, retried wholesale.
			c.setKindOutcome(ks.kind, state.lastApplied, false, append(warnings, err.Error()))
			c.metrics.KindFailed(ks.kind)
			record(err)
		default:
			c.setKindOutcome(ks.kind, dig, false, warnings)
			c.metrics.KindPublished(ks.kind, delta)
			for _, w := range warnings {
				logging.Warn(subsystem, "Pass %s: %s: %s", passID, ks.kind, w)
			}
		}
	}
	return firstErr
}

func (c *Controller) kindState(kind publisher.Kind) kindState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.kinds[kind]
}

func (c *Controller) setKindOutcome(kind publisher.Kind, lastApplied digest.Digest, deferred bool, errs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ks := c.kinds[kind]
	ks.lastApplied = lastApplied
	ks.deferred = deferred
	ks.errors = errs
}

func errorStrings(fileErrors []loader.FileError, dupErrors []loader.FileError) []string {
	out := make([]string, 0, len(fileErrors)+len(dupErrors))
	for _, fe := range fileErrors {
		out = append(out, fe.Error())
	}
	for _, de := range dupErrors {
		out = append(out, de.Error())
	}
	return out
}
