// Package publisher projects validated record sets into the downstream
// stores. It keeps a per-kind cache of what was last written, computes the
// minimal delta on each publish, and treats the store's live content as
// ground truth: after a process restart the cache is rebuilt from the store
// before the first write, so republishing an unchanged set issues no writes.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/canonical/cos-configuration-k8s-operator/internal/loader"
	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"
)

const subsystem = "Publisher"

// Kind identifies one of the three independent downstream stores.
type Kind string

const (
	KindMetricRules Kind = "metric-rules"
	KindLogRules    Kind = "log-rules"
	KindDashboards  Kind = "dashboards"
)

// Kinds returns all downstream kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindMetricRules, KindLogRules, KindDashboards}
}

// ErrChannelNotJoined is returned when a kind has no channel yet. Publishing
// that kind is deferred until one is joined; other kinds are unaffected.
var ErrChannelNotJoined = errors.New("downstream channel not joined")

// DuplicateNameError records a name collision between two source files. The
// lexically earlier path wins; the later file is rejected.
type DuplicateNameError struct {
	Name       string
	WinnerPath string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("record name %q already produced by %s", e.Name, e.WinnerPath)
}

// Channel is the write surface of one downstream store. Implementations must
// support reading the store's current content so the publisher can rebuild
// its view after a restart.
type Channel interface {
	// Current returns the store's present record set, keyed by name.
	Current(ctx context.Context) (map[string]json.RawMessage, error)

	// Put creates or replaces the named record.
	Put(ctx context.Context, name string, payload json.RawMessage) error

	// Delete removes the named record. Deleting an absent name is not an
	// error.
	Delete(ctx context.Context, name string) error
}

// Delta summarizes the writes applied by one publish.
type Delta struct {
	Added   int
	Updated int
	Removed int
}

// Empty reports whether the publish was a no-op.
func (d Delta) Empty() bool {
	return d.Added == 0 && d.Updated == 0 && d.Removed == 0
}

// Publisher owns the per-kind published-set caches. It is safe for use from a
// single reconcile pass at a time; the controller serializes passes.
type Publisher struct {
	mu       sync.Mutex
	channels map[Kind]Channel

	// published caches the last-written set per kind. A nil map means the
	// cache has not been reconstructed from the store yet.
	published map[Kind]map[string]json.RawMessage
}

// New creates a publisher with no channels joined.
func New() *Publisher {
	return &Publisher{
		channels:  make(map[Kind]Channel),
		published: make(map[Kind]map[string]json.RawMessage),
	}
}

// Join attaches a channel for a kind. The cached published set is discarded
// so the next publish revalidates against the store's live content.
func (p *Publisher) Join(kind Kind, ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[kind] = ch
	delete(p.published, kind)
	logging.Info(subsystem, "Channel joined for %s", kind)
}

// Leave detaches the channel for a kind.
func (p *Publisher) Leave(kind Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.channels[kind]; ok {
		delete(p.channels, kind)
		delete(p.published, kind)
		logging.Info(subsystem, "Channel left for %s", kind)
	}
}

// Joined reports whether a channel is attached for the kind.
func (p *Publisher) Joined(kind Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[kind]
	return ok
}

// PublishedCount returns the size of the last-written set for a kind, or -1
// if it has not been reconstructed yet.
func (p *Publisher) PublishedCount(kind Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.published[kind]
	if !ok {
		return -1
	}
	return len(set)
}

// Publish projects the given records into the kind's store, applying only
// the delta against the last-published set. Duplicate record names are
// resolved first-by-path-wins and reported per losing file. A returned error
// means the store could not be (fully) written and the caller must not
// advance its last-applied digest.
func (p *Publisher) Publish(ctx context.Context, kind Kind, records []loader.Record) (Delta, []loader.FileError, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.channels[kind]
	if !ok {
		return Delta{}, nil, ErrChannelNotJoined
	}

	desired, dupErrors := dedupe(records)

	current, err := p.currentLocked(ctx, kind, ch)
	if err != nil {
		return Delta{}, dupErrors, fmt.Errorf("reading current %s content: %w", kind, err)
	}

	var delta Delta
	// Additions and updates, in stable name order.
	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		payload := desired[name]
		prev, exists := current[name]
		if exists && bytes.Equal(prev, payload) {
			continue
		}
		if err := ch.Put(ctx, name, payload); err != nil {
			return delta, dupErrors, fmt.Errorf("writing %s/%s: %w", kind, name, err)
		}
		current[name] = payload
		if exists {
			delta.Updated++
		} else {
			delta.Added++
		}
	}

	// Removals: names whose source disappeared.
	stale := make([]string, 0)
	for name := range current {
		if _, ok := desired[name]; !ok {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	for _, name := range stale {
		if err := ch.Delete(ctx, name); err != nil {
			return delta, dupErrors, fmt.Errorf("removing %s/%s: %w", kind, name, err)
		}
		delete(current, name)
		delta.Removed++
	}

	if !delta.Empty() {
		logging.Info(subsystem, "Published %s: %d added, %d updated, %d removed",
			kind, delta.Added, delta.Updated, delta.Removed)
	} else {
		logging.Debug(subsystem, "Published %s: no changes", kind)
	}
	return delta, dupErrors, nil
}

// Clear removes every record the publisher knows about for a kind. A kind
// without a joined channel has nothing to clear.
func (p *Publisher) Clear(ctx context.Context, kind Kind) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.channels[kind]
	if !ok {
		return nil
	}

	current, err := p.currentLocked(ctx, kind, ch)
	if err != nil {
		return fmt.Errorf("reading current %s content: %w", kind, err)
	}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ch.Delete(ctx, name); err != nil {
			return fmt.Errorf("removing %s/%s: %w", kind, name, err)
		}
		delete(current, name)
	}
	if len(names) > 0 {
		logging.Info(subsystem, "Cleared %d records from %s", len(names), kind)
	}
	return nil
}

// currentLocked returns the cached published set, reconstructing it from the
// store on first use after start (or after a channel re-join). The returned
// map is the live cache; callers mutate it as writes succeed.
func (p *Publisher) currentLocked(ctx context.Context, kind Kind, ch Channel) (map[string]json.RawMessage, error) {
	if set, ok := p.published[kind]; ok {
		return set, nil
	}
	live, err := ch.Current(ctx)
	if err != nil {
		return nil, err
	}
	if live == nil {
		live = make(map[string]json.RawMessage)
	}
	p.published[kind] = live
	logging.Debug(subsystem, "Reconstructed published set for %s: %d records", kind, len(live))
	return live, nil
}

// dedupe resolves name collisions deterministically: records are considered
// in lexical source-path order and the first occupant of a name wins.
func dedupe(records []loader.Record) (map[string]json.RawMessage, []loader.FileError) {
	ordered := make([]loader.Record, len(records))
	copy(ordered, records)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SourcePath < ordered[j].SourcePath })

	desired := make(map[string]json.RawMessage, len(ordered))
	winners := make(map[string]string, len(ordered))
	var dupErrors []loader.FileError
	for _, record := range ordered {
		if winner, taken := winners[record.Name]; taken {
			dupErrors = append(dupErrors, loader.FileError{
				Path: record.SourcePath,
				Err:  &DuplicateNameError{Name: record.Name, WinnerPath: winner},
			})
			continue
		}
		winners[record.Name] = record.SourcePath
		desired[record.Name] = record.Payload
	}
	return desired, dupErrors
}
