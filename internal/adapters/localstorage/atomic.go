package localstorage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// Swappable in tests.
var renameFunc = os.Rename

// writeFileAtomic replaces path with data through a temp file in the same
// directory followed by a rename.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := renameFunc(tmpName, path); err != nil {
		return err
	}
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// ErrLockTimeout is returned when the manifest lock cannot be taken in time.
var ErrLockTimeout = errors.New("timed out waiting for manifest lock")

// fileLock is an advisory lock held by the existence of a file created with
// O_EXCL. A lock older than stale is considered abandoned and removed.
type fileLock struct {
	path string
}

func acquireLock(path string, wait, stale time.Duration) (*fileLock, error) {
	deadline := time.Now().Add(wait)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return &fileLock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}
		if fi, statErr := os.Stat(path); statErr == nil && time.Since(fi.ModTime()) > stale {
			breakStaleLock(path, fi)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// breakStaleLock removes the lock at path only if it is still the file
// described by observed. The lock is first moved aside under a unique name,
// so a lock another waiter created after observed was taken is put back
// instead of deleted.
func breakStaleLock(path string, observed os.FileInfo) bool {
	aside := fmt.Sprintf("%s.stale-%d-%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(path, aside); err != nil {
		return false
	}
	fi, err := os.Stat(aside)
	if err == nil && (!os.SameFile(fi, observed) || !fi.ModTime().Equal(observed.ModTime())) {
		_ = os.Link(aside, path)
		_ = os.Remove(aside)
		return false
	}
	_ = os.Remove(aside)
	return true
}

func (l *fileLock) release() {
	_ = os.Remove(l.path)
}
