package snapshot

import (
	"sync"
	"testing"
)

func TestLoadBeforePublishReturnsZeroSeq(t *testing.T) {
	c := NewCell[int]()
	_, seq := c.Load()
	if seq != 0 {
		t.Errorf("expected seq 0 before any publish, got %d", seq)
	}
}

func TestPublishThenLoadRoundTrips(t *testing.T) {
	c := NewCell[int]()
	c.Publish(42)
	v, seq := c.Load()
	if v != 42 || seq != 1 {
		t.Errorf("expected (42, 1), got (%d, %d)", v, seq)
	}

	c.Publish(43)
	v, seq = c.Load()
	if v != 43 || seq != 2 {
		t.Errorf("expected (43, 2), got (%d, %d)", v, seq)
	}
}

// TestNoTornReads is P8: a concurrent reader must never observe a
// value whose fields were mixed from two different publishes.
func TestNoTornReads(t *testing.T) {
	type frame struct {
		A, B, C int
	}
	c := NewCell[frame]()

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 10000; i++ {
			c.Publish(frame{A: i, B: i, C: i})
		}
		close(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			v, seq := c.Load()
			if seq > 0 && (v.A != v.B || v.B != v.C) {
				t.Errorf("torn read: %+v", v)
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	wg.Wait()
}
