package jsrt

import (
	"sync"

	"github.com/6over3/jsrt/abi"
)

// owner identifies an affinity-lock holder: a goroutine and the context it
// has made current. The invalid context marks runtime-wide exclusive work.
type owner struct {
	g   int64
	key abi.ContextRef
}

type waiter struct {
	owner owner
	ready chan struct{}
}

// affinityLock guarantees that at most one context of a runtime is current
// on the engine at a time. The holder may re-acquire for the same context;
// everyone else queues FIFO and is handed ownership directly on release.
type affinityLock struct {
	mu    sync.Mutex
	held  bool
	owner owner
	depth int
	queue []*waiter
}

// acquire blocks until g owns the lock for key. A goroutine that already
// holds the lock for a different key gets a usage error: waiting would
// deadlock on itself.
func (l *affinityLock) acquire(g int64, key abi.ContextRef) error {
	l.mu.Lock()
	switch {
	case !l.held:
		l.held = true
		l.owner = owner{g, key}
		l.depth = 1
		l.mu.Unlock()
		return nil
	case l.owner.g == g && l.owner.key == key:
		l.depth++
		l.mu.Unlock()
		return nil
	case l.owner.g == g:
		held := l.owner.key
		l.mu.Unlock()
		return usageError(abi.ErrorInvalidContext,
			"goroutine already has %s current; entering %s would deadlock", held, key)
	}
	w := &waiter{owner: owner{g, key}, ready: make(chan struct{})}
	l.queue = append(l.queue, w)
	l.mu.Unlock()
	<-w.ready
	return nil
}

// release undoes one acquire by g. Ownership passes to the next waiter
// once the depth reaches zero.
func (l *affinityLock) release(g int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || l.owner.g != g {
		panic("jsrt: affinity lock released by a goroutine that does not hold it")
	}
	l.depth--
	if l.depth > 0 {
		return
	}
	if len(l.queue) == 0 {
		l.held = false
		l.owner = owner{}
		return
	}
	next := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.owner = next.owner
	l.depth = 1
	close(next.ready)
}

// holder returns the key g holds, if any.
func (l *affinityLock) holder(g int64) (abi.ContextRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held && l.owner.g == g {
		return l.owner.key, true
	}
	return abi.InvalidContext, false
}

// owns reports whether g holds the lock for key.
func (l *affinityLock) owns(g int64, key abi.ContextRef) bool {
	k, ok := l.holder(g)
	return ok && k == key
}

// waiting returns the number of queued waiters.
func (l *affinityLock) waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
