// Package reconciler contains the workload's convergence engine.
//
// The Controller implements a single reconcile pass: converge the external
// sync agent to the configured source, detect content change via digests,
// load and validate the rule and dashboard files, and publish the delta to
// each downstream store. The workload lifecycle is a flat three-state
// machine (Uninitialized, Idle, Configured) driven solely by whether a
// source location is configured.
//
// The Manager serializes passes. All trigger sources — the scheduled tick,
// the fsnotify repo watcher, configuration changes, downstream channel
// joins, and the manual sync action — feed a depth-one queue: a trigger
// arriving while a pass is in flight coalesces into exactly one follow-up
// pass, and an in-flight pass always completes before the next one starts.
package reconciler
