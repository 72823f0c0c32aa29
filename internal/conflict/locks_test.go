package conflict

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocLocks_MutualExclusion(t *testing.T) {
	locks := NewDocLocks()
	var inside, maxInside atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("doc1")
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, locks.Len(), "entries are released")
}

func TestDocLocks_IndependentKeys(t *testing.T) {
	locks := NewDocLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestDocLocks_UnlockIdempotent(t *testing.T) {
	locks := NewDocLocks()
	unlock := locks.Lock("a")
	unlock()
	unlock()
	assert.Equal(t, 0, locks.Len())

	// The key is usable again.
	unlock = locks.Lock("a")
	unlock()
}
