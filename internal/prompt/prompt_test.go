package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// Source
// =============================================================================

func TestNewSource_WhenNoOverride_ShouldUseBuiltInInstructions(t *testing.T) {
	s, err := NewSource("")
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if s.Instructions() != DefaultInstructions {
		t.Error("expected the built-in instructions")
	}
	if !strings.Contains(s.Instructions(), "'search' tool") {
		t.Error("built-in instructions should reference the search tool")
	}
	if !strings.Contains(s.Instructions(), "'update_order' tool") {
		t.Error("built-in instructions should reference the order tool")
	}
}

func TestNewSource_WhenOverrideExists_ShouldUseIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("You only serve espresso.\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewSource(path)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if s.Instructions() != "You only serve espresso." {
		t.Errorf("instructions = %q", s.Instructions())
	}
}

func TestNewSource_WhenOverrideMissing_ShouldFail(t *testing.T) {
	if _, err := NewSource(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("a configured but unreadable override should fail")
	}
}

func TestReload_WhenFileEmptied_ShouldRestoreBuiltIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	os.WriteFile(path, []byte("custom"), 0644)
	s, err := NewSource(path)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	os.WriteFile(path, []byte("  \n"), 0644)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.Instructions() != DefaultInstructions {
		t.Error("an emptied override should restore the built-in instructions")
	}
}

func TestInstructions_WhenReadAndReloadedConcurrently_ShouldNotRace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	os.WriteFile(path, []byte("v0"), 0644)
	s, err := NewSource(path)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Instructions()
			}
		}()
	}
	for i := 0; i < 20; i++ {
		os.WriteFile(path, []byte(fmt.Sprintf("v%d", i)), 0644)
		if err := s.Reload(); err != nil {
			t.Fatalf("Reload: %v", err)
		}
	}
	wg.Wait()
}

// =============================================================================
// Watcher
// =============================================================================

func TestWatcher_WhenOverrideChanges_ShouldReloadInstructions(t *testing.T) {
	// Given a started watcher over an override file
	path := filepath.Join(t.TempDir(), "prompt.txt")
	os.WriteFile(path, []byte("before"), 0644)
	s, err := NewSource(path)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	w := NewWatcher(s, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// When the file changes on disk
	if err := os.WriteFile(path, []byte("after"), 0644); err != nil {
		t.Fatal(err)
	}

	// Then the new text shows up after the debounce window
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Instructions() == "after" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("instructions never reloaded, still %q", s.Instructions())
}

func TestWatcher_WhenSourceHasNoOverride_ShouldRefuseToStart(t *testing.T) {
	s, _ := NewSource("")
	w := NewWatcher(s, nil)
	if err := w.Start(); err == nil {
		t.Fatal("expected an error for a source with no override file")
	}
}

func TestWatcher_WhenStartedTwice_ShouldFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	os.WriteFile(path, []byte("x"), 0644)
	s, err := NewSource(path)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	w := NewWatcher(s, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer w.Stop()
	if err := w.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestWatcher_Stop_ShouldBeSafeWithoutStart(t *testing.T) {
	s, _ := NewSource("")
	w := NewWatcher(s, nil)
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop without Start: %v", err)
	}
}

func TestWatcher_WhenWatcherCreationFails_ShouldPropagateError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	os.WriteFile(path, []byte("x"), 0644)
	s, err := NewSource(path)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	w := NewWatcher(s, nil)
	w.newWatcherFn = func() (*fsnotify.Watcher, error) {
		return nil, fmt.Errorf("no inotify for you")
	}
	if err := w.Start(); err == nil {
		t.Fatal("expected the injected error")
	}
}
