package ring

import (
	"testing"

	"pgregory.net/rapid"
)

func TestCopyLastOrdering(t *testing.T) {
	r := New(2048)
	for i := 0; i < 300; i++ {
		r.Push(float64(i))
	}

	out := make([]float64, 100)
	r.CopyLast(100, out)

	for i, v := range out {
		want := float64(300 - 100 + i)
		if v != want {
			t.Fatalf("out[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestCopyLastNeverExceedsWritten(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New(2048)
		n := rapid.IntRange(0, 50).Draw(t, "n")
		for i := 0; i < n; i++ {
			r.Push(float64(i))
		}

		ask := rapid.IntRange(1, 2048).Draw(t, "ask")
		out := make([]float64, ask)
		r.CopyLast(ask, out)

		want := ask
		if n < want {
			want = n
		}
		for i := 0; i < want; i++ {
			expected := float64(n - want + i)
			if out[i] != expected {
				t.Fatalf("out[%d] = %v, want %v (n=%d ask=%d)", i, out[i], expected, n, ask)
			}
		}
	})
}

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-power-of-two capacity")
		}
	}()
	New(100)
}
