package reconciler

import (
	"sync"
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/publisher"
)

// Metrics tracks reconciliation counters for the status surface. Counters are
// kept per downstream kind so a single misbehaving store is visible on its
// own.
type Metrics struct {
	mu sync.RWMutex

	kindMetrics map[publisher.Kind]*kindMetrics

	passesStarted   int64
	passesSucceeded int64
	passesFailed    int64
	lastTrigger     TriggerSource
	lastPassAt      time.Time
}

// kindMetrics holds counters for one downstream kind.
type kindMetrics struct {
	Publishes      int64
	Skips          int64
	Failures       int64
	RecordsAdded   int64
	RecordsUpdated int64
	RecordsRemoved int64
	LastPublishAt  time.Time
}

// NewMetrics creates an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		kindMetrics: make(map[publisher.Kind]*kindMetrics),
	}
}

func (m *Metrics) forKind(kind publisher.Kind) *kindMetrics {
	if km, ok := m.kindMetrics[kind]; ok {
		return km
	}
	km := &kindMetrics{}
	m.kindMetrics[kind] = km
	return km
}

// PassStarted records the start of a reconcile pass.
func (m *Metrics) PassStarted(source TriggerSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passesStarted++
	m.lastTrigger = source
	m.lastPassAt = time.Now()
}

// PassSucceeded records a pass that completed without a pass-level error.
func (m *Metrics) PassSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passesSucceeded++
}

// PassFailed records a pass that hit a pass-level error.
func (m *Metrics) PassFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passesFailed++
}

// KindPublished records a completed publish for a kind.
func (m *Metrics) KindPublished(kind publisher.Kind, delta publisher.Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	km := m.forKind(kind)
	km.Publishes++
	km.RecordsAdded += int64(delta.Added)
	km.RecordsUpdated += int64(delta.Updated)
	km.RecordsRemoved += int64(delta.Removed)
	km.LastPublishAt = time.Now()
}

// KindSkipped records a fast-path skip (content digest unchanged).
func (m *Metrics) KindSkipped(kind publisher.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forKind(kind).Skips++
}

// KindFailed records a per-kind failure (read, load or publish).
func (m *Metrics) KindFailed(kind publisher.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forKind(kind).Failures++
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	PassesStarted   int64                              `json:"passesStarted"`
	PassesSucceeded int64                              `json:"passesSucceeded"`
	PassesFailed    int64                              `json:"passesFailed"`
	LastTrigger     TriggerSource                      `json:"lastTrigger,omitempty"`
	LastPassAt      time.Time                          `json:"lastPassAt,omitempty"`
	Kinds           map[publisher.Kind]KindSnapshot    `json:"kinds"`
}

// KindSnapshot is the per-kind portion of a Snapshot.
type KindSnapshot struct {
	Publishes      int64     `json:"publishes"`
	Skips          int64     `json:"skips"`
	Failures       int64     `json:"failures"`
	RecordsAdded   int64     `json:"recordsAdded"`
	RecordsUpdated int64     `json:"recordsUpdated"`
	RecordsRemoved int64     `json:"recordsRemoved"`
	LastPublishAt  time.Time `json:"lastPublishAt,omitempty"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		PassesStarted:   m.passesStarted,
		PassesSucceeded: m.passesSucceeded,
		PassesFailed:    m.passesFailed,
		LastTrigger:     m.lastTrigger,
		LastPassAt:      m.lastPassAt,
		Kinds:           make(map[publisher.Kind]KindSnapshot, len(m.kindMetrics)),
	}
	for kind, km := range m.kindMetrics {
		snap.Kinds[kind] = KindSnapshot{
			Publishes:      km.Publishes,
			Skips:          km.Skips,
			Failures:       km.Failures,
			RecordsAdded:   km.RecordsAdded,
			RecordsUpdated: km.RecordsUpdated,
			RecordsRemoved: km.RecordsRemoved,
			LastPublishAt:  km.LastPublishAt,
		}
	}
	return snap
}
