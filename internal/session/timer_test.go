package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kanolab/fawnbot/internal/models"
)

func TestHandleFiresExactlyOnce(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{})
	h := Schedule("k", 1, 5*time.Millisecond, func(key models.SessionKey, version int64) {
		if key != "k" || version != 1 {
			t.Errorf("expected key=k version=1, got key=%s version=%d", key, version)
		}
		fired.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	// Cancelling a fired handle must have no observable effect.
	h.Cancel()
	h.Cancel()
	time.Sleep(20 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly 1 fire, got %d", got)
	}
}

func TestCancelPreventsFire(t *testing.T) {
	var fired atomic.Int32
	h := Schedule("k", 1, 30*time.Millisecond, func(models.SessionKey, int64) {
		fired.Add(1)
	})
	h.Cancel()

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("expected no fire after cancel, got %d", got)
	}
}

func TestNilHandleCancel(t *testing.T) {
	var h *Handle
	h.Cancel() // must not panic
}

func TestCancelFireRaceResolvesToOneWinner(t *testing.T) {
	for i := 0; i < 200; i++ {
		var fired atomic.Int32
		h := Schedule("k", int64(i), time.Microsecond, func(models.SessionKey, int64) {
			fired.Add(1)
		})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Cancel()
		}()
		wg.Wait()

		time.Sleep(time.Millisecond)
		if got := fired.Load(); got > 1 {
			t.Fatalf("iteration %d: expected at most one fire, got %d", i, got)
		}
	}
}
