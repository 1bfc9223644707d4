package window

import "testing"

func TestTableIsSymmetricAndCached(t *testing.T) {
	b := NewBank()
	n := 512
	t1 := b.Table(n)
	if len(t1) != n {
		t.Fatalf("expected length %d, got %d", n, len(t1))
	}

	// Hann window is symmetric.
	for i := 0; i < n/2; i++ {
		j := n - 1 - i
		if diff := t1[i] - t1[j]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("window not symmetric at %d/%d: %v vs %v", i, j, t1[i], t1[j])
		}
	}

	t2 := b.Table(n)
	if &t1[0] != &t2[0] {
		t.Error("expected cached table to be reused for the same size")
	}
}

func TestTableEdgesNearZero(t *testing.T) {
	b := NewBank()
	tab := b.Table(256)
	if tab[0] > 0.01 || tab[len(tab)-1] > 0.01 {
		t.Errorf("expected Hann window to taper to ~0 at the edges, got %v .. %v", tab[0], tab[len(tab)-1])
	}
}
