package jsrt

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/6over3/jsrt/abi"
)

func TestAffinityLock_Reentrant(t *testing.T) {
	var l affinityLock
	for i := 0; i < 3; i++ {
		if err := l.acquire(1, 7); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if !l.owns(1, 7) {
		t.Fatal("owner not recorded")
	}
	l.release(1)
	l.release(1)
	if !l.owns(1, 7) {
		t.Fatal("released before depth reached zero")
	}
	l.release(1)
	if _, held := l.holder(1); held {
		t.Fatal("still held after final release")
	}
}

func TestAffinityLock_SameGoroutineOtherContext(t *testing.T) {
	var l affinityLock
	if err := l.acquire(1, 7); err != nil {
		t.Fatal(err)
	}
	defer l.release(1)

	err := l.acquire(1, 8)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("acquire other context = %v, want usage error", err)
	}
	var je *Error
	if !errors.As(err, &je) || je.Code != abi.ErrorInvalidContext {
		t.Fatalf("code = %v, want %s", err, abi.ErrorInvalidContext)
	}
}

func TestAffinityLock_FIFOHandoff(t *testing.T) {
	var l affinityLock
	if err := l.acquire(1, 7); err != nil {
		t.Fatal(err)
	}

	const waiters = 5
	var (
		mu    sync.Mutex
		order []int64
		wg    sync.WaitGroup
	)
	for g := int64(2); g < 2+waiters; g++ {
		wg.Add(1)
		go func(g int64) {
			defer wg.Done()
			if err := l.acquire(g, abi.ContextRef(g)); err != nil {
				t.Errorf("acquire %d: %v", g, err)
				return
			}
			mu.Lock()
			order = append(order, g)
			mu.Unlock()
			l.release(g)
		}(g)
		// Queue in a known order.
		deadline := time.Now().Add(time.Second)
		for l.waiting() != int(g-1) {
			if time.Now().After(deadline) {
				t.Fatalf("waiter %d never queued", g)
			}
			time.Sleep(time.Millisecond)
		}
	}

	l.release(1)
	wg.Wait()
	for i, g := range order {
		if g != int64(i+2) {
			t.Fatalf("order = %v, want FIFO", order)
		}
	}
	if _, held := l.holder(order[len(order)-1]); held {
		t.Fatal("lock still held after every waiter released")
	}
}

func TestAffinityLock_ReleaseByStranger(t *testing.T) {
	var l affinityLock
	if err := l.acquire(1, 7); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("release by a non-owner did not panic")
		}
	}()
	l.release(2)
}
