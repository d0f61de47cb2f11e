// Package gitsync controls the external git-sync process that mirrors the
// configured repository onto local storage. The supervisor runs git-sync
// either as a long-lived child (continuous mode) or as a one-shot invocation
// with a bounded wait, and exposes the last observed sync outcome.
//
// See https://github.com/kubernetes/git-sync for the tool being driven.
package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/config"
	"github.com/canonical/cos-configuration-k8s-operator/pkg/logging"
)

const subsystem = "GitSync"

// RevisionUnknown is reported when the revision file is missing or
// unparseable. This is normal before the first successful sync and is
// distinct from a failed sync attempt.
const RevisionUnknown = ""

// sshKeyFileName holds the configured SSH private key, if any. The key file
// must be readable by the owner only.
const sshKeyFileName = "cos-config-ssh-key.priv"

// sshKnownHostsFileName holds the keyscanned public keys of the remote host.
const sshKnownHostsFileName = "cos-config-known-hosts"

// sshKeyscanCommand is the binary used to collect the remote's host keys.
// Variable so tests can substitute a stub.
var sshKeyscanCommand = "ssh-keyscan"

var versionPattern = regexp.MustCompile(`v(\d+\.\d+\.\d+)`)

// sshRemotePattern extracts the host from SSH-style remotes, specifically:
//   - git@<remote>:<user>/...
//   - git+ssh://<user>@<remote>/...
var sshRemotePattern = regexp.MustCompile(`@(.+?)[:/]`)

// SyncError is returned when a git-sync invocation fails. Details carries the
// process stderr for surfacing to the operator.
type SyncError struct {
	Message string
	Details string
}

func (e *SyncError) Error() string {
	return "sync error: " + e.Message
}

// Result is the outcome of the most recent sync attempt.
type Result struct {
	// Success reports whether the last attempt completed.
	Success bool

	// Revision is the commit the local mirror is at, or RevisionUnknown.
	Revision string

	// Err describes the failure when Success is false.
	Err string

	// Timestamp is when the outcome was recorded.
	Timestamp time.Time
}

// Supervisor manages the git-sync child process.
type Supervisor struct {
	mu sync.Mutex

	binary  string
	root    string
	period  time.Duration
	timeout time.Duration

	// spec the continuous agent is currently running with
	spec config.SourceSpec

	// agent is the continuous-mode child, nil when stopped
	agent  *exec.Cmd
	cancel context.CancelFunc

	last Result
}

// NewSupervisor creates a supervisor for the git-sync binary mirroring into
// root. period is the continuous-mode sync interval; timeout bounds one-shot
// invocations.
func NewSupervisor(binary, root string, period, timeout time.Duration) *Supervisor {
	return &Supervisor{
		binary:  binary,
		root:    root,
		period:  period,
		timeout: timeout,
	}
}

// EnsureRunning converges the continuous agent to the given spec. With an
// unconfigured spec the agent is stopped. Re-entering with an unchanged spec
// verifies the agent is alive and does nothing else.
func (s *Supervisor) EnsureRunning(spec config.SourceSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !spec.Configured() {
		s.stopLocked()
		return nil
	}

	if s.agent != nil && s.spec == spec {
		return nil
	}
	s.stopLocked()

	if err := s.prepareAuth(spec); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	args := s.commandLine(spec, false)
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Env = proxyEnviron()
	if err := cmd.Start(); err != nil {
		cancel()
		return &SyncError{Message: err.Error()}
	}

	s.agent = cmd
	s.cancel = cancel
	s.spec = spec
	logging.Info(subsystem, "Started continuous sync for %s (period %s)", spec.Repo, s.period)

	go s.reap(cmd, cancel)
	return nil
}

// reap waits for a continuous agent to exit and records the outcome. A
// normal stop (context cancelled) is not recorded as a failure.
func (s *Supervisor) reap(cmd *exec.Cmd, cancel context.CancelFunc) {
	err := cmd.Wait()
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent != cmd {
		return // superseded or deliberately stopped
	}
	s.agent = nil
	s.cancel = nil
	if err != nil {
		logging.Warn(subsystem, "Continuous sync agent exited: %v", err)
		s.last = Result{Success: false, Err: err.Error(), Timestamp: time.Now()}
	}
}

// Stop terminates the continuous agent if it is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	if s.agent == nil {
		return
	}
	logging.Info(subsystem, "Stopping continuous sync agent")
	// reap() performs the Wait; it sees s.agent != cmd and skips recording
	// the deliberate kill as a sync failure.
	s.agent = nil
	s.spec = config.SourceSpec{}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Running reports whether the continuous agent is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent != nil
}

// TriggerOneShot forces a single sync cycle and waits for it to finish, up to
// the configured timeout. Any running continuous agent is stopped first and
// left stopped. The process output is returned for surfacing to the caller of
// a manual sync action.
func (s *Supervisor) TriggerOneShot(ctx context.Context, spec config.SourceSpec) (stdout string, err error) {
	if !spec.Configured() {
		return "", &SyncError{Message: "no source location configured"}
	}
	if err := s.prepareAuth(spec); err != nil {
		return "", err
	}

	// Two git-sync processes must not work the same root concurrently, so
	// the continuous agent is stopped first. The caller restarts it via
	// EnsureRunning once the one-shot completes.
	s.Stop()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := s.commandLine(spec, true)
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Env = proxyEnviron()
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	result := Result{Timestamp: time.Now()}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Err = fmt.Sprintf("timed out after %s", s.timeout)
		err = &SyncError{Message: result.Err, Details: errBuf.String()}
	case runErr != nil:
		result.Err = runErr.Error()
		err = &SyncError{Message: runErr.Error(), Details: errBuf.String()}
	default:
		result.Success = true
		result.Revision = s.CurrentRevision()
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	for _, line := range strings.Split(errBuf.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			logging.Info(subsystem, "git-sync: %s", line)
		}
	}
	return outBuf.String(), err
}

// Status returns the last recorded sync outcome, refreshed with the revision
// currently on disk. Continuous-mode cycles are not individually observable,
// so the revision probe is the source of truth for progress.
func (s *Supervisor) Status() Result {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	rev := s.CurrentRevision()
	if rev != RevisionUnknown {
		last.Revision = rev
		if last.Err == "" {
			last.Success = true
		}
	}
	return last
}

// CurrentRevision reads the commit hash of the checked-out worktree from the
// `.git` gitdir file that git-sync leaves in the repo directory. The file
// contents look like:
//
//	gitdir: ../.git/worktrees/28bd5c3e582708dd4c2b5919a01fd8ff37cd07c6
//
// Only the final path element (the hash) is of interest.
func (s *Supervisor) CurrentRevision() string {
	contents, err := os.ReadFile(filepath.Join(s.root, config.RepoSubdir, ".git"))
	if err != nil {
		logging.Debug(subsystem, "Error reading revision file: %v", err)
		return RevisionUnknown
	}
	line := strings.TrimSpace(string(contents))
	if idx := strings.LastIndex(line, "/"); idx >= 0 && idx+1 < len(line) {
		return line[idx+1:]
	}
	logging.Debug(subsystem, "Unrecognized revision file format: %.100s", line)
	return RevisionUnknown
}

// Version probes the git-sync binary for its version, best effort.
func (s *Supervisor) Version(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, s.binary, "--version").CombinedOutput()
	if err != nil {
		return ""
	}
	if m := versionPattern.FindSubmatch(out); m != nil {
		return string(m[1])
	}
	return ""
}

// RemoveRepo deletes the local mirror. Called when the source location is
// cleared so a later re-configure starts from a clean checkout.
func (s *Supervisor) RemoveRepo() error {
	return os.RemoveAll(filepath.Join(s.root, config.RepoSubdir))
}

// commandLine constructs the git-sync invocation for the given spec.
func (s *Supervisor) commandLine(spec config.SourceSpec, oneShot bool) []string {
	args := []string{"--repo", spec.Repo}
	if spec.Branch != "" {
		args = append(args, "--branch", spec.Branch)
	}
	if spec.Rev != "" {
		args = append(args, "--rev", spec.Rev)
	}
	if spec.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(spec.Depth))
	}
	args = append(args, "--root", s.root, "--dest", config.RepoSubdir)
	if spec.SSHKey != "" {
		args = append(args, "--ssh", "--ssh-key-file", s.sshKeyFile())
		args = append(args, "--ssh-known-hosts-file", s.knownHostsFile())
	}
	if oneShot {
		args = append(args, "--one-time")
	} else {
		args = append(args, "--period", s.period.String())
	}
	return args
}

func (s *Supervisor) sshKeyFile() string {
	return filepath.Join(s.root, sshKeyFileName)
}

func (s *Supervisor) knownHostsFile() string {
	return filepath.Join(s.root, sshKnownHostsFileName)
}

// prepareAuth writes the SSH key to disk when one is configured and installs
// the remote's host keys in the known_hosts file git-sync is pointed at. The
// key file is owner-readable only, as required by ssh.
func (s *Supervisor) prepareAuth(spec config.SourceSpec) error {
	if spec.SSHKey == "" {
		return nil
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return &SyncError{Message: err.Error()}
	}
	if err := os.WriteFile(s.sshKeyFile(), []byte(spec.SSHKey), 0o600); err != nil {
		return &SyncError{Message: err.Error()}
	}
	return s.trustRemote(spec.Repo)
}

// sshRemoteHost returns the host part of an SSH-style remote, or "" when the
// remote does not look like one.
func sshRemoteHost(repo string) string {
	if m := sshRemotePattern.FindStringSubmatch(repo); m != nil {
		return m[1]
	}
	return ""
}

// trustRemote keyscans the remote and replaces the known_hosts file with its
// public keys, so host-key verification succeeds on the first sync.
func (s *Supervisor) trustRemote(repo string) error {
	host := sshRemoteHost(repo)
	if host == "" {
		return nil
	}

	out, err := exec.Command(sshKeyscanCommand, host).Output()
	if err != nil {
		details := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			details = string(exitErr.Stderr)
		}
		return &SyncError{Message: fmt.Sprintf("ssh-keyscan %s: %v", host, err), Details: details}
	}
	if err := os.WriteFile(s.knownHostsFile(), out, 0o644); err != nil {
		return &SyncError{Message: err.Error()}
	}
	logging.Info(subsystem, "%s public keys added to known_hosts", host)
	return nil
}

// proxyEnviron passes the ambient proxy settings through to git-sync.
func proxyEnviron() []string {
	env := os.Environ()
	for _, key := range []string{"https_proxy", "http_proxy", "no_proxy"} {
		if v := os.Getenv(strings.ToUpper(key)); v != "" && os.Getenv(key) == "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}
