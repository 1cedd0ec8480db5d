package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// ErrDaemonLocked is returned when another bunny daemon already holds
// the lock for this cache directory.
var ErrDaemonLocked = errors.New("daemon lock already held by another process")

// lockInfo is the metadata written into the lock file for operators
// inspecting a running daemon.
type lockInfo struct {
	PID        int       `json:"pid"`
	Collection string    `json:"collection"`
	StartedAt  time.Time `json:"started_at"`
}

// Lock is a held exclusive flock on the daemon lock file, preventing
// two daemons from polling for the same collection on one host.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes a non-blocking exclusive flock on
// <dir>/bunny-daemon.lock and records this process's identity in it.
func AcquireLock(dir, collection string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, "bunny-daemon.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrDaemonLocked
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	info := lockInfo{PID: os.Getpid(), Collection: collection, StartedAt: time.Now()}
	if data, err := json.Marshal(info); err == nil {
		_ = f.Truncate(0)
		_, _ = f.WriteAt(data, 0)
	}

	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	return err
}
