package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestLockFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := acquireLock(fs, "db.kv", "run-1"); err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	if !IsLocked(fs, "db.kv") {
		t.Fatal("IsLocked = false after acquire")
	}

	content, err := afero.ReadFile(fs, LockFilePath("db.kv"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.Contains(string(content), "pid=") || !strings.Contains(string(content), "owner=run-1") {
		t.Errorf("lock file content = %q", content)
	}

	if err := acquireLock(fs, "db.kv", "run-2"); !errors.Is(err, ErrLocked) {
		t.Errorf("second acquire = %v, want ErrLocked", err)
	}

	if err := releaseLock(fs, "db.kv"); err != nil {
		t.Fatalf("releaseLock: %v", err)
	}
	if IsLocked(fs, "db.kv") {
		t.Error("IsLocked = true after release")
	}
	if err := releaseLock(fs, "db.kv"); err != nil {
		t.Errorf("releasing a missing lock = %v, want nil", err)
	}
}
