package reconciler

import (
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/digest"
	"github.com/canonical/cos-configuration-k8s-operator/internal/gitsync"
	"github.com/canonical/cos-configuration-k8s-operator/internal/publisher"
)

// WorkloadState is the workload lifecycle state.
type WorkloadState string

const (
	// StateUninitialized means no source location was ever configured: the
	// sync agent has not started and nothing was published.
	StateUninitialized WorkloadState = "Uninitialized"

	// StateIdle means the source location is unset but the agent previously
	// ran; the agent is stopped and downstream data has been cleared.
	StateIdle WorkloadState = "Idle"

	// StateConfigured means a source location is set and the sync agent is
	// running; downstream data reflects the last successful sync.
	StateConfigured WorkloadState = "Configured"
)

// TriggerSource indicates what initiated a reconcile pass.
type TriggerSource string

const (
	// SourceTick is the scheduled reconcile interval.
	SourceTick TriggerSource = "tick"

	// SourceManual is the externally invoked re-sync action. It forces a
	// one-shot sync before the pass evaluates the content.
	SourceManual TriggerSource = "manual"

	// SourceConfig is a change to the source spec or subpath configuration.
	SourceConfig TriggerSource = "config"

	// SourceChannel is a downstream channel becoming joined.
	SourceChannel TriggerSource = "channel"

	// SourceFSWatch is a detected change in the synced repository.
	SourceFSWatch TriggerSource = "fswatch"
)

// Trigger is a request for one reconcile pass.
type Trigger struct {
	Source    TriggerSource
	Timestamp time.Time
}

// NewTrigger creates a trigger with the current timestamp.
func NewTrigger(source TriggerSource) Trigger {
	return Trigger{Source: source, Timestamp: time.Now()}
}

// KindStatus is the per-downstream-kind outcome of the last pass that
// touched it.
type KindStatus struct {
	// PublishedCount is the size of the last-published set, -1 when not yet
	// known (channel never read).
	PublishedCount int `json:"publishedCount"`

	// LastAppliedDigest is the content digest last successfully published.
	LastAppliedDigest string `json:"lastAppliedDigest,omitempty"`

	// Deferred is true when the kind's channel is not joined yet.
	Deferred bool `json:"deferred,omitempty"`

	// Errors holds per-file and per-kind error messages from the last pass
	// that processed this kind.
	Errors []string `json:"errors,omitempty"`
}

// Status is a snapshot of the controller's view of the workload.
type Status struct {
	State          WorkloadState                     `json:"state"`
	Message        string                            `json:"message,omitempty"`
	LastSync       gitsync.Result                    `json:"lastSync"`
	Revision       string                            `json:"revision,omitempty"`
	GitSyncVersion string                            `json:"gitSyncVersion,omitempty"`
	Kinds          map[publisher.Kind]KindStatus     `json:"kinds"`
	LastPassID     string                            `json:"lastPassId,omitempty"`
	LastPassTime   time.Time                         `json:"lastPassTime,omitempty"`
	LastPassError  string                            `json:"lastPassError,omitempty"`
}

// kindState is the controller's internal per-kind bookkeeping.
type kindState struct {
	lastApplied digest.Digest
	deferred    bool
	errors      []string
}
