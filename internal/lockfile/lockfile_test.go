package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireLockWritesPID(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %q", lock.Path())
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("lock file content = %q, want %q", content, want)
	}
}

func TestAcquireLockCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory was not created: %v", err)
	}
}

func TestAcquireLockConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("expected second acquisition to fail")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if !strings.Contains(lockErr.Holder, fmt.Sprintf("pid %d (running)", os.Getpid())) {
		t.Errorf("holder = %q, want this process", lockErr.Holder)
	}
	if !strings.Contains(err.Error(), "another ReliefPipe instance") {
		t.Errorf("unexpected error message: %v", err)
	}

	// The failed attempt must not clobber the holder's pid.
	content, _ := os.ReadFile(first.Path())
	if parsePID(string(content)) != os.Getpid() {
		t.Errorf("holder pid was overwritten: %q", content)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("failed to reacquire lock: %v", err)
	}
	again.Release()
}

func TestParsePID(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"pid=42", 42},
		{"host=a\npid=7 extra", 7},
		{"pid=", 0},
		{"pid=abc", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parsePID(tt.content); got != tt.want {
			t.Errorf("parsePID(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func TestDescribeHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	if got := describeHolder(path); got != "unknown" {
		t.Errorf("missing file: got %q", got)
	}

	os.WriteFile(path, []byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0644)
	if got := describeHolder(path); !strings.Contains(got, "running") || strings.Contains(got, "not running") {
		t.Errorf("live pid: got %q", got)
	}

	// Very large pids are not assigned on any supported system.
	os.WriteFile(path, []byte("pid=999999999\n"), 0644)
	if got := describeHolder(path); !strings.Contains(got, "not running") {
		t.Errorf("dead pid: got %q", got)
	}
}
