package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const DefaultPath = "dbintegrity.lock"

// WriteGrace is how long a lock file without a readable PID counts as held.
// The owner creates the file before writing its PID.
const WriteGrace = 10 * time.Second

// ErrLocked is returned when another running process holds the lock
var ErrLocked = errors.New("another dbintegrity run is active")

// FileLock is a single-owner lock backed by a file holding the owner's PID
type FileLock struct {
	path string
}

func New(path string) *FileLock {
	if path == "" {
		path = DefaultPath
	}
	return &FileLock{path: path}
}

// Path returns the lock file location
func (l *FileLock) Path() string {
	return l.path
}

// Acquire creates the lock file with the current process PID. A lock file
// left behind by a process that is no longer running is taken over.
func (l *FileLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			return errors.Join(werr, f.Close())
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock file: %w", err)
		}

		locked, pid, err := l.IsHeld()
		if err != nil {
			return fmt.Errorf("reading lock file: %w", err)
		}
		if locked && pid == 0 {
			return fmt.Errorf("%w (lock file %s is being written)", ErrLocked, l.path)
		}
		if locked {
			return fmt.Errorf("%w (PID %d, lock file %s)", ErrLocked, pid, l.path)
		}
		if err := l.removeStale(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w (lock file %s)", ErrLocked, l.path)
}

// Release removes the lock file.
func (l *FileLock) Release() error {
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld checks if the lock is currently held by a running process. A file
// without a readable PID is held, with PID 0, until it is older than
// WriteGrace.
func (l *FileLock) IsHeld() (bool, int, error) {
	return held(l.path)
}

func held(path string) (bool, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, 0, nil
			}
			return false, 0, err
		}
		return time.Since(info.ModTime()) < WriteGrace, 0, nil
	}
	if isProcessRunning(pid) {
		return true, pid, nil
	}
	return false, pid, nil
}

// removeStale moves the lock file aside and deletes it. Another process may
// have replaced the stale file since it was checked; such a live lock is
// linked back into place and reported as ErrLocked.
func (l *FileLock) removeStale() error {
	aside := fmt.Sprintf("%s.%d.stale", l.path, os.Getpid())
	if err := os.Rename(l.path, aside); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("moving stale lock file: %w", err)
	}
	defer os.Remove(aside)

	live, pid, err := held(aside)
	if err != nil {
		return fmt.Errorf("reading stale lock file: %w", err)
	}
	if !live {
		return nil
	}
	if err := os.Link(aside, l.path); err != nil && !os.IsExist(err) {
		return fmt.Errorf("restoring lock file: %w", err)
	}
	return fmt.Errorf("%w (PID %d, lock file %s)", ErrLocked, pid, l.path)
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
