package mathx

import "testing"

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
		if c.q*c.b+Mod(c.a, c.b) != c.a {
			t.Fatalf("q*b+m != a for a=%d", c.a)
		}
	}
}

func TestHash3Stable(t *testing.T) {
	a := Hash3(42, 1, -2, 3)
	b := Hash3(42, 1, -2, 3)
	if a != b {
		t.Fatalf("hash not stable: %d vs %d", a, b)
	}
	if Hash3(43, 1, -2, 3) == a {
		t.Fatalf("seed does not affect hash")
	}
	if Hash3(42, -2, 1, 3) == a {
		t.Fatalf("axis order does not affect hash")
	}
}

func TestClampInt(t *testing.T) {
	if ClampInt(-3, 0, 8) != 0 || ClampInt(9, 0, 8) != 8 || ClampInt(5, 0, 8) != 5 {
		t.Fatalf("clamp out of range")
	}
}
