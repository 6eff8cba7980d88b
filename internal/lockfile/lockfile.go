// Package lockfile guards the bot's state directory against concurrent
// FawnBot instances.
//
// Two bots sharing one gallery root and archive database would race on
// gallery filenames and job records, so startup takes an exclusive flock on a
// well-known file inside the state directory. The kernel releases the lock
// when the process exits, gracefully or not, so a crash never leaves the
// directory permanently locked.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the lock file created inside the state directory.
const LockFileName = "fawnbot.lock"

// Lock is a held state-directory lock. Release it on shutdown; it is also
// released implicitly when the process dies.
type Lock struct {
	file     *os.File
	path     string
	acquired bool
}

// Acquire takes an exclusive lock on stateDir, creating the directory if
// needed. When another instance holds the lock, the returned error is a
// *HeldError describing the conflicting process.
func Acquire(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Lockfile acquiring", "path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	// LOCK_NB so a second instance fails immediately instead of queueing
	// behind the running one.
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("Lockfile held by another FawnBot instance", "path", lockPath, "holder", holder)
		return nil, &HeldError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if _, err := fmt.Fprintf(file, "pid=%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", lockPath, err)
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Lockfile sync failed", "error", err, "path", lockPath)
	}

	slog.Info("Lockfile acquired", "path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath, acquired: true}, nil
}

// Release drops the lock and removes the lock file. Safe to call more than
// once.
func (l *Lock) Release() error {
	if !l.acquired || l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lockfile unlock failed", "error", err, "path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Lockfile close failed", "error", err, "path", l.path)
	}
	if err := os.Remove(l.path); err != nil {
		slog.Error("Lockfile remove failed", "error", err, "path", l.path)
	}

	l.acquired = false
	l.file = nil
	slog.Info("Lockfile released", "path", l.path)
	return nil
}

// HeldError reports that another FawnBot instance holds the state
// directory lock.
type HeldError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("another FawnBot instance is already using this state directory (lock file: %s)", e.LockPath)
	if e.Holder != "" {
		msg += fmt.Sprintf("; held by %s", e.Holder)
	}
	msg += fmt.Sprintf(". If no other instance is running the lock is stale and can be removed with: rm %s", e.LockPath)
	return msg
}

func (e *HeldError) Unwrap() error {
	return e.Cause
}

// describeHolder reads the existing lock file and reports who holds it,
// including whether that process is still alive.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}

	pid := parsePID(string(data))
	if pid <= 0 {
		return strings.TrimSpace(string(data))
	}
	if processAlive(pid) {
		return fmt.Sprintf("PID %d (running)", pid)
	}
	return fmt.Sprintf("PID %d (not running, stale lock)", pid)
}

// parsePID extracts the pid=NNNN entry from lock file content, or 0.
func parsePID(content string) int {
	const prefix = "pid="
	idx := strings.Index(content, prefix)
	if idx == -1 {
		return 0
	}
	start := idx + len(prefix)
	end := start
	for end < len(content) && content[end] >= '0' && content[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	pid, err := strconv.Atoi(content[start:end])
	if err != nil {
		return 0
	}
	return pid
}

// processAlive checks for the process with signal 0, which probes existence
// without delivering anything.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
