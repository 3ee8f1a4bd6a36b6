package encoding

import (
	"errors"
	"testing"

	"voxelworld.dev/internal/sim/world/voxel"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]voxel.Voxel, 0, 200)
	in = append(in, voxel.Stone, voxel.Stone, voxel.Stone, voxel.Dirt, voxel.Dirt, voxel.Grass)
	for i := 0; i < 50; i++ {
		in = append(in, voxel.Air)
	}
	in = append(in, voxel.Water, voxel.Log, voxel.Log, voxel.Log)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_Limit(t *testing.T) {
	enc := EncodeRLE(make([]voxel.Voxel, 100))
	if _, err := DecodeRLE(enc, 99); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err=%v want ErrCorrupt", err)
	}
	if _, err := DecodeRLE("%%%", 0); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad base64: err=%v", err)
	}
}

func TestGridRoundTrip(t *testing.T) {
	g := voxel.NewGrid(4)
	for x := 0; x < 4; x++ {
		g.Column(x, 1, func(y int) voxel.Voxel {
			if y < 2 {
				return voxel.Stone
			}
			return voxel.Air
		})
	}
	if _, err := g.Set(voxel.Pos{X: 3, Y: 3, Z: 3}, voxel.Snow); err != nil {
		t.Fatalf("set: %v", err)
	}
	back, err := DecodeGrid(4, EncodeGrid(g))
	if err != nil {
		t.Fatalf("DecodeGrid: %v", err)
	}
	for i, v := range g.Cells() {
		if back.Cells()[i] != v {
			t.Fatalf("cell %d: got %v want %v", i, back.Cells()[i], v)
		}
	}
	if _, err := DecodeGrid(8, EncodeGrid(g)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("size mismatch: err=%v", err)
	}
}
