// Package lock guards against two trading processes managing the same
// account at once. The lock is a plain PID file so a human or the panic
// switch can always inspect it.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	logger "github.com/sirupsen/logrus"
)

type Lock struct {
	path   string
	locked bool
}

func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire refuses to start while another live instance holds the lock. A
// lock left behind by a dead process is treated as stale and replaced.
func (l *Lock) Acquire() error {
	if pid, ok := readPID(l.path); ok {
		if processRunning(pid) {
			return fmt.Errorf("another instance is running with pid %d, lock file %s", pid, l.path)
		}

		logger.WithField("pid", pid).Warn("Removing stale lock file")
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	l.locked = true

	logger.WithField("pid", os.Getpid()).Info("Instance lock acquired")
	return nil
}

// Release removes the lock file if this process holds it.
func (l *Lock) Release() {
	if !l.locked {
		return
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warn("Could not release instance lock")
		return
	}
	l.locked = false
	logger.Info("Instance lock released")
}

// ReadPID returns the PID recorded in an existing lock file. The panic
// switch uses it to target the running instance.
func ReadPID(path string) (int, error) {
	pid, ok := readPID(path)
	if !ok {
		return 0, fmt.Errorf("no valid pid in lock file %s", path)
	}
	return pid, nil
}

func readPID(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func processRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
