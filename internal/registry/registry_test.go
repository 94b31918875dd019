package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	r := NewRegistry(0)

	state := r.Acquire("pad1")
	require.NotNil(t, state)
	assert.Equal(t, "pad1", state.PadID())
	assert.Equal(t, 1, r.Live())

	// Second attach returns the same state.
	again := r.Acquire("pad1")
	assert.Same(t, state, again)
	assert.Equal(t, 1, r.Live())

	r.Release("pad1")
	assert.NotNil(t, r.Get("pad1"))

	r.Release("pad1")
	assert.Nil(t, r.Get("pad1"))
	assert.Equal(t, 0, r.Live())
}

func TestReleaseUnknownPad(t *testing.T) {
	r := NewRegistry(4)
	r.Release("never-acquired")
	assert.Equal(t, 0, r.Live())
}

func TestPadsAreIndependent(t *testing.T) {
	r := NewRegistry(0)
	a := r.Acquire("pad-a")
	b := r.Acquire("pad-b")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Live())

	// Holding one pad's lock does not block the other's.
	a.Lock()
	done := make(chan struct{})
	go func() {
		b.Lock()
		b.Unlock()
		close(done)
	}()
	<-done
	a.Unlock()
}

func TestPadLockSerializesMutations(t *testing.T) {
	r := NewRegistry(0)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := r.Acquire("pad1")
			state.Lock()
			counter++
			state.Unlock()
			r.Release("pad1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, r.Live())
}
