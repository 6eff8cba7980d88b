package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("lock file not readable: %v", err)
	}
	want := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != want {
		t.Errorf("lock file content = %q, want %q", content, want)
	}
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	lock1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer lock1.Release()

	lock2, err := Acquire(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("second Acquire should have failed")
	}

	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("error type = %T, want *HeldError", err)
	}
	if !strings.Contains(err.Error(), "another FawnBot instance") {
		t.Errorf("error message = %q", err.Error())
	}
	if !strings.Contains(held.Holder, fmt.Sprintf("PID %d (running)", os.Getpid())) {
		t.Errorf("holder = %q", held.Holder)
	}
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}

	// The directory is free again after release.
	relock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	relock.Release()
}

func TestAcquireCreatesStateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "nested")

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire should create missing directories: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory was not created: %v", err)
	}
}

func TestParsePID(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"plain", "pid=12345\n", 12345},
		{"trailing fields", "pid=67890\nhost=deer", 67890},
		{"missing", "host=deer", 0},
		{"empty", "", 0},
		{"non numeric", "pid=abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parsePID(tt.content); got != tt.want {
				t.Errorf("parsePID(%q) = %d, want %d", tt.content, got, tt.want)
			}
		})
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("our own process should be alive")
	}
}
