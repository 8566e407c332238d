package goid

import (
	"sync"
	"testing"
)

func TestGet_Stable(t *testing.T) {
	a, b := Get(), Get()
	if a == 0 {
		t.Fatal("expected a non-zero goroutine id")
	}
	if a != b {
		t.Errorf("id changed within one goroutine: %d != %d", a, b)
	}
}

func TestGet_Distinct(t *testing.T) {
	const n = 16
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = Get()
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate goroutine id %d", id)
		}
		seen[id] = true
	}
	if seen[Get()] {
		t.Error("test goroutine id collides with a child id")
	}
}
