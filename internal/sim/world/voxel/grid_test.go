package voxel

import (
	"errors"
	"testing"
)

func TestGridGetSet(t *testing.T) {
	g := NewGrid(8)
	prev, err := g.Set(Pos{X: 1, Y: 2, Z: 3}, Stone)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if prev != Air {
		t.Fatalf("prev=%v want AIR", prev)
	}
	prev, err = g.Set(Pos{X: 1, Y: 2, Z: 3}, Dirt)
	if err != nil || prev != Stone {
		t.Fatalf("prev=%v err=%v want STONE", prev, err)
	}
	got, err := g.Get(Pos{X: 1, Y: 2, Z: 3})
	if err != nil || got != Dirt {
		t.Fatalf("get=%v err=%v want DIRT", got, err)
	}
	if g.At(1, 2, 3) != Dirt {
		t.Fatalf("At disagrees with Get")
	}
	if n := countNonAir(g); n != 1 {
		t.Fatalf("set touched %d cells, want 1", n)
	}
}

func TestGridOutOfBounds(t *testing.T) {
	g := NewGrid(4)
	for _, p := range []Pos{{X: -1}, {X: 4}, {Y: -1}, {Y: 4}, {Z: -1}, {Z: 4}} {
		if _, err := g.Get(p); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("get %+v: err=%v want ErrOutOfBounds", p, err)
		}
		if _, err := g.Set(p, Stone); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("set %+v: err=%v want ErrOutOfBounds", p, err)
		}
	}
	if n := countNonAir(g); n != 0 {
		t.Fatalf("out of bounds set mutated %d cells", n)
	}
}

func TestGridLayerAxes(t *testing.T) {
	g := NewGrid(4)
	_, _ = g.Set(Pos{X: 0, Y: 1, Z: 2}, Stone)
	_, _ = g.Set(Pos{X: 3, Y: 1, Z: 2}, Sand)

	// X layers: u=Y, v=Z.
	if got := g.Layer(0, 0).At(1, 2); got != Stone {
		t.Fatalf("x layer 0 at (1,2)=%v want STONE", got)
	}
	if got := g.Layer(0, 3).At(1, 2); got != Sand {
		t.Fatalf("x layer 3 at (1,2)=%v want SAND", got)
	}
	// Y layers: u=Z, v=X.
	if got := g.Layer(1, 1).At(2, 3); got != Sand {
		t.Fatalf("y layer 1 at (2,3)=%v want SAND", got)
	}
	// Z layers: u=X, v=Y.
	if got := g.Layer(2, 2).At(0, 1); got != Stone {
		t.Fatalf("z layer 2 at (0,1)=%v want STONE", got)
	}
}

func TestGridCloneIsIndependent(t *testing.T) {
	g := NewGrid(4)
	g.Fill(Stone)
	c := g.Clone()
	_, _ = g.Set(Pos{}, Air)
	if c.At(0, 0, 0) != Stone {
		t.Fatalf("clone shares storage")
	}
	if v, ok := c.Uniform(); !ok || v != Stone {
		t.Fatalf("clone uniform=%v,%v want STONE,true", v, ok)
	}
	if _, ok := g.Uniform(); ok {
		t.Fatalf("edited grid reported uniform")
	}
}

func TestSplitNegativeWorldPos(t *testing.T) {
	c, p := Split(WorldPos{X: -1, Y: 16, Z: -17}, 16)
	if c != (ChunkCoord{X: -1, Y: 1, Z: -2}) {
		t.Fatalf("chunk=%v", c)
	}
	if p != (Pos{X: 15, Y: 0, Z: 15}) {
		t.Fatalf("local=%+v", p)
	}
	o := c.Origin(16)
	if o.X+p.X != -1 || o.Y+p.Y != 16 || o.Z+p.Z != -17 {
		t.Fatalf("origin+local does not round trip: %+v %+v", o, p)
	}
}

func TestFaces(t *testing.T) {
	for _, f := range Faces {
		if f.Opposite().Opposite() != f {
			t.Fatalf("%v opposite not involutive", f)
		}
		d, o := f.Dir(), f.Opposite().Dir()
		for i := range d {
			if d[i] != -o[i] {
				t.Fatalf("%v dir %v not opposite of %v", f, d, o)
			}
		}
	}
	if f, ok := FaceOf(Pos{X: 15, Y: 3}, 0, 16); !ok || f != PosX {
		t.Fatalf("FaceOf x=15 got %v,%v want +X", f, ok)
	}
	if f, ok := FaceOf(Pos{Y: 0}, 1, 16); !ok || f != NegY {
		t.Fatalf("FaceOf y=0 got %v,%v want -Y", f, ok)
	}
	if _, ok := FaceOf(Pos{Z: 7}, 2, 16); ok {
		t.Fatalf("interior position reported on a face")
	}
}

func TestMaterialTable(t *testing.T) {
	if Air.Solid() || Water.Solid() {
		t.Fatalf("air/water must not be solid")
	}
	if !Stone.Solid() {
		t.Fatalf("stone must be solid")
	}
	if Voxel(9999).Solid() || Voxel(9999).Valid() {
		t.Fatalf("unknown ids must behave as air")
	}
	if len(Palette()) != len(Materials) {
		t.Fatalf("palette size mismatch")
	}
}

func countNonAir(g *Grid) int {
	n := 0
	for _, v := range g.Cells() {
		if v != Air {
			n++
		}
	}
	return n
}
