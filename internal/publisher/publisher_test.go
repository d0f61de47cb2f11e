package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/canonical/cos-configuration-k8s-operator/internal/loader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory Channel that counts operations.
type fakeChannel struct {
	store       map[string]json.RawMessage
	puts        int
	deletes     int
	currents    int
	failPut     error
	failCurrent error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{store: make(map[string]json.RawMessage)}
}

func (f *fakeChannel) Current(ctx context.Context) (map[string]json.RawMessage, error) {
	f.currents++
	if f.failCurrent != nil {
		return nil, f.failCurrent
	}
	out := make(map[string]json.RawMessage, len(f.store))
	for k, v := range f.store {
		out[k] = v
	}
	return out, nil
}

func (f *fakeChannel) Put(ctx context.Context, name string, payload json.RawMessage) error {
	if f.failPut != nil {
		return f.failPut
	}
	f.puts++
	f.store[name] = payload
	return nil
}

func (f *fakeChannel) Delete(ctx context.Context, name string) error {
	f.deletes++
	delete(f.store, name)
	return nil
}

func (f *fakeChannel) writes() int {
	return f.puts + f.deletes
}

func record(name, path, payload string) loader.Record {
	return loader.Record{Name: name, SourcePath: path, Payload: json.RawMessage(payload)}
}

func TestPublish_NotJoined(t *testing.T) {
	p := New()
	_, _, err := p.Publish(context.Background(), KindMetricRules, nil)
	assert.ErrorIs(t, err, ErrChannelNotJoined)
}

func TestPublish_Idempotent(t *testing.T) {
	p := New()
	ch := newFakeChannel()
	p.Join(KindMetricRules, ch)

	records := []loader.Record{
		record("cpu", "rules/cpu.yaml", `{"groups":[]}`),
		record("mem", "rules/mem.yaml", `{"groups":[]}`),
	}

	delta, dupErrs, err := p.Publish(context.Background(), KindMetricRules, records)
	require.NoError(t, err)
	assert.Empty(t, dupErrs)
	assert.Equal(t, Delta{Added: 2}, delta)
	assert.Equal(t, 2, ch.writes())

	// Second publish of the identical set issues zero writes.
	delta, _, err = p.Publish(context.Background(), KindMetricRules, records)
	require.NoError(t, err)
	assert.True(t, delta.Empty())
	assert.Equal(t, 2, ch.writes())
}

func TestPublish_MinimalDelta(t *testing.T) {
	p := New()
	ch := newFakeChannel()
	p.Join(KindDashboards, ch)

	_, _, err := p.Publish(context.Background(), KindDashboards, []loader.Record{
		record("a", "d/a.json", `{"v":1}`),
		record("b", "d/b.json", `{"v":1}`),
	})
	require.NoError(t, err)

	ch.puts, ch.deletes = 0, 0
	delta, _, err := p.Publish(context.Background(), KindDashboards, []loader.Record{
		record("a", "d/a.json", `{"v":2}`), // changed
		record("c", "d/c.json", `{"v":1}`), // new
		// b removed
	})
	require.NoError(t, err)
	assert.Equal(t, Delta{Added: 1, Updated: 1, Removed: 1}, delta)
	assert.Equal(t, 2, ch.puts)
	assert.Equal(t, 1, ch.deletes)

	assert.JSONEq(t, `{"v":2}`, string(ch.store["a"]))
	_, hasB := ch.store["b"]
	assert.False(t, hasB)
}

func TestPublish_DuplicateNameFirstPathWins(t *testing.T) {
	p := New()
	ch := newFakeChannel()
	p.Join(KindLogRules, ch)

	delta, dupErrs, err := p.Publish(context.Background(), KindLogRules, []loader.Record{
		record("dup", "rules/z-late.yaml", `{"loser":true}`),
		record("dup", "rules/a-early.yaml", `{"winner":true}`),
	})
	require.NoError(t, err)
	assert.Equal(t, Delta{Added: 1}, delta)

	require.Len(t, dupErrs, 1)
	assert.Equal(t, "rules/z-late.yaml", dupErrs[0].Path)
	var dup *DuplicateNameError
	require.ErrorAs(t, dupErrs[0].Err, &dup)
	assert.Equal(t, "dup", dup.Name)
	assert.Equal(t, "rules/a-early.yaml", dup.WinnerPath)

	assert.JSONEq(t, `{"winner":true}`, string(ch.store["dup"]))
}

// After a restart the publisher must trust the store's live content, not an
// empty cache: republishing an unchanged set issues zero writes.
func TestPublish_RestartReconstruction(t *testing.T) {
	ch := newFakeChannel()
	ch.store["cpu"] = json.RawMessage(`{"groups":[]}`)

	p := New() // fresh process
	p.Join(KindMetricRules, ch)

	delta, _, err := p.Publish(context.Background(), KindMetricRules, []loader.Record{
		record("cpu", "rules/cpu.yaml", `{"groups":[]}`),
	})
	require.NoError(t, err)
	assert.True(t, delta.Empty())
	assert.Zero(t, ch.writes())
	assert.Equal(t, 1, ch.currents, "cache must be reconstructed exactly once")

	// Subsequent publishes use the cache.
	_, _, err = p.Publish(context.Background(), KindMetricRules, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.currents)
}

func TestPublish_CurrentFailureIsRetriable(t *testing.T) {
	ch := newFakeChannel()
	ch.failCurrent = errors.New("store unreachable")

	p := New()
	p.Join(KindMetricRules, ch)

	_, _, err := p.Publish(context.Background(), KindMetricRules, nil)
	require.Error(t, err)

	// Once the store recovers, publishing proceeds.
	ch.failCurrent = nil
	delta, _, err := p.Publish(context.Background(), KindMetricRules, []loader.Record{
		record("cpu", "rules/cpu.yaml", `{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, Delta{Added: 1}, delta)
}

func TestPublish_PutFailureSurfaced(t *testing.T) {
	ch := newFakeChannel()
	ch.failPut = errors.New("write refused")

	p := New()
	p.Join(KindMetricRules, ch)

	_, _, err := p.Publish(context.Background(), KindMetricRules, []loader.Record{
		record("cpu", "rules/cpu.yaml", `{}`),
	})
	assert.Error(t, err)

	// Retry after recovery republishes the record.
	ch.failPut = nil
	delta, _, err := p.Publish(context.Background(), KindMetricRules, []loader.Record{
		record("cpu", "rules/cpu.yaml", `{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, Delta{Added: 1}, delta)
}

func TestClear(t *testing.T) {
	ch := newFakeChannel()
	ch.store["a"] = json.RawMessage(`{}`)
	ch.store["b"] = json.RawMessage(`{}`)

	p := New()
	p.Join(KindDashboards, ch)

	require.NoError(t, p.Clear(context.Background(), KindDashboards))
	assert.Empty(t, ch.store)
	assert.Equal(t, 2, ch.deletes)

	// Clearing an unjoined kind is a no-op.
	assert.NoError(t, p.Clear(context.Background(), KindLogRules))
}

func TestPublishedCount(t *testing.T) {
	p := New()
	ch := newFakeChannel()
	p.Join(KindMetricRules, ch)

	assert.Equal(t, -1, p.PublishedCount(KindMetricRules), "unknown before first publish")

	_, _, err := p.Publish(context.Background(), KindMetricRules, []loader.Record{
		record("cpu", "rules/cpu.yaml", `{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.PublishedCount(KindMetricRules))
}
