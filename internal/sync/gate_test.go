package sync

import (
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
)

func TestGate_RejectsWhileHeld(t *testing.T) {
	g := NewGate()

	if !g.TryLock() {
		t.Fatal("first TryLock() on free gate failed")
	}
	if g.TryLock() {
		t.Error("second TryLock() succeeded while held")
	}
	if !g.Held() {
		t.Error("Held() = false while held")
	}

	g.Unlock()
	if !g.TryLock() {
		t.Error("TryLock() failed right after Unlock()")
	}
	g.Unlock()

	// Unlocking a free gate is harmless.
	g.Unlock()
	if g.Held() {
		t.Error("Held() = true after Unlock()")
	}
}

func TestGate_OnlyOneConcurrentWinner(t *testing.T) {
	g := NewGate()

	var wins atomic.Int32
	var wg gosync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryLock() {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d goroutines took the gate, want 1", wins.Load())
	}
}

func TestFileGate_ExclusiveAcrossInstances(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "sync.lock")
	daemon := NewFileGate(lockPath)
	cli := NewFileGate(lockPath)

	if !daemon.TryLock() {
		t.Fatal("daemon TryLock() failed on free lock file")
	}
	if cli.TryLock() {
		t.Fatal("cli TryLock() succeeded while daemon holds the lock file")
	}
	if cli.Held() {
		t.Error("failed TryLock() left the gate marked held")
	}

	daemon.Unlock()
	if !cli.TryLock() {
		t.Error("cli TryLock() failed after daemon released")
	}
	cli.Unlock()
}
