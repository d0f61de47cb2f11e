// Package logging provides a structured logging facade for the daemon, built
// on Go's standard slog package.
//
// All log entries carry a subsystem identifier so that the output of the
// reconciler, the git-sync supervisor and the publishers can be told apart in
// a single stream:
//
//	logging.Info("Reconciler", "pass %s complete", passID)
//	logging.Error("GitSync", err, "one-shot sync failed")
//
// Init must be called once at startup with the desired minimum level; any
// logging before Init falls back to stderr at INFO.
package logging
