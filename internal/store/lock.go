package store

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
)

// LockSuffix is appended to the store path to name its lock file.
const LockSuffix = ".lock"

// LockFilePath returns the lock file guarding the store at path.
func LockFilePath(path string) string {
	return path + LockSuffix
}

// IsLocked reports whether a lock file exists for the store at path.
func IsLocked(fs afero.Fs, path string) bool {
	ok, err := afero.Exists(fs, LockFilePath(path))
	return err == nil && ok
}

// acquireLock creates the lock file. Returns ErrLocked if it already exists.
func acquireLock(fs afero.Fs, path, owner string) error {
	lockPath := LockFilePath(path)
	f, err := fs.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) || IsLocked(fs, path) {
			return fmt.Errorf("%s (remove it if no loader is running): %w", lockPath, ErrLocked)
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	content := fmt.Sprintf("pid=%d\nowner=%s\ntime=%s\n", os.Getpid(), owner, time.Now().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// releaseLock removes the lock file.
func releaseLock(fs afero.Fs, path string) error {
	if err := fs.Remove(LockFilePath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
