package mesh

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/world/voxel"
)

func set(t *testing.T, g *voxel.Grid, x, y, z int, v voxel.Voxel) {
	t.Helper()
	if _, err := g.Set(voxel.Pos{X: x, Y: y, Z: z}, v); err != nil {
		t.Fatalf("set %d,%d,%d: %v", x, y, z, err)
	}
}

func airNeighbors(n int) [6]*voxel.Plane {
	var out [6]*voxel.Plane
	for i := range out {
		out[i] = voxel.UniformPlane(n, voxel.Air)
	}
	return out
}

func solidNeighbors(n int) [6]*voxel.Plane {
	var out [6]*voxel.Plane
	for i := range out {
		out[i] = voxel.UniformPlane(n, voxel.Stone)
	}
	return out
}

// quadArea sums w*h per material using the far-corner UV of each quad.
func quadArea(m *Mesh) map[voxel.Voxel]int {
	out := map[voxel.Voxel]int{}
	for q := 0; q < m.Quads(); q++ {
		v := m.Vertices[4*q+2]
		out[v.Material] += int(v.UV.X() * v.UV.Y())
	}
	return out
}

func TestSingleVoxel(t *testing.T) {
	g := voxel.NewGrid(8)
	set(t, g, 3, 4, 5, voxel.Grass)
	for _, greedy := range []bool{true, false} {
		m := New(greedy).Build(Input{Grid: g, Neighbors: solidNeighbors(8)})
		if m.Quads() != 6 || len(m.Vertices) != 24 || len(m.Indices) != 36 {
			t.Fatalf("greedy=%v: quads=%d verts=%d indices=%d want 6/24/36",
				greedy, m.Quads(), len(m.Vertices), len(m.Indices))
		}
		for _, v := range m.Vertices {
			if v.Material != voxel.Grass {
				t.Fatalf("vertex material=%v want GRASS", v.Material)
			}
		}
	}
}

func TestEmptyGrid(t *testing.T) {
	m := New(true).Build(Input{Grid: voxel.NewGrid(8), Neighbors: airNeighbors(8)})
	if !m.Empty() {
		t.Fatalf("air chunk produced %d quads", m.Quads())
	}
	if q := New(true).Build(Input{}).Quads(); q != 0 {
		t.Fatalf("nil grid produced %d quads", q)
	}
}

func TestSolidChunkBoundaries(t *testing.T) {
	const n = 8
	g := voxel.NewGrid(n)
	g.Fill(voxel.Stone)

	if q := New(true).Build(Input{Grid: g, Neighbors: solidNeighbors(n)}).Quads(); q != 0 {
		t.Fatalf("solid neighbors: quads=%d want 0", q)
	}
	if q := New(true).Build(Input{Grid: g}).Quads(); q != 0 {
		t.Fatalf("missing neighbors: quads=%d want 0", q)
	}
	m := New(true).Build(Input{Grid: g, Neighbors: airNeighbors(n)})
	if m.Quads() != 6 {
		t.Fatalf("air neighbors greedy: quads=%d want 6", m.Quads())
	}
	for q := 0; q < m.Quads(); q++ {
		if uv := m.Vertices[4*q+2].UV; uv != (mgl32.Vec2{n, n}) {
			t.Fatalf("quad %d far UV=%v want (%d,%d)", q, uv, n, n)
		}
	}
	if q := New(false).Build(Input{Grid: g, Neighbors: airNeighbors(n)}).Quads(); q != 6*n*n {
		t.Fatalf("air neighbors naive: quads=%d want %d", q, 6*n*n)
	}
}

func TestOneMissingNeighbor(t *testing.T) {
	const n = 4
	g := voxel.NewGrid(n)
	g.Fill(voxel.Dirt)
	nbs := airNeighbors(n)
	nbs[voxel.PosY] = nil
	m := New(true).Build(Input{Grid: g, Neighbors: nbs})
	if m.Quads() != 5 {
		t.Fatalf("quads=%d want 5", m.Quads())
	}
	for _, v := range m.Vertices {
		if v.Normal == (mgl32.Vec3{0, 1, 0}) {
			t.Fatalf("emitted a face toward an unloaded neighbor")
		}
	}
}

func TestMergeSameMaterial(t *testing.T) {
	g := voxel.NewGrid(8)
	set(t, g, 3, 3, 3, voxel.Stone)
	set(t, g, 4, 3, 3, voxel.Stone)
	if q := New(true).Build(Input{Grid: g}).Quads(); q != 6 {
		t.Fatalf("2x1x1 same material: quads=%d want 6", q)
	}
	if q := New(false).Build(Input{Grid: g}).Quads(); q != 10 {
		t.Fatalf("2x1x1 naive: quads=%d want 10", q)
	}
}

func TestNoMergeAcrossMaterials(t *testing.T) {
	g := voxel.NewGrid(8)
	set(t, g, 3, 3, 3, voxel.Stone)
	set(t, g, 4, 3, 3, voxel.Dirt)
	m := New(true).Build(Input{Grid: g})
	if m.Quads() != 10 {
		t.Fatalf("two materials: quads=%d want 10", m.Quads())
	}
	area := quadArea(m)
	if area[voxel.Stone] != 5 || area[voxel.Dirt] != 5 {
		t.Fatalf("area by material=%v want 5 each", area)
	}
}

func TestWaterDoesNotHideFaces(t *testing.T) {
	g := voxel.NewGrid(8)
	set(t, g, 3, 3, 3, voxel.Sand)
	set(t, g, 3, 4, 3, voxel.Water)
	if q := New(true).Build(Input{Grid: g}).Quads(); q != 6 {
		t.Fatalf("quads=%d want 6", q)
	}
}

func randomGrid(n int, seed int64) *voxel.Grid {
	r := rand.New(rand.NewSource(seed))
	g := voxel.NewGrid(n)
	mats := []voxel.Voxel{voxel.Air, voxel.Air, voxel.Air, voxel.Stone, voxel.Stone, voxel.Dirt, voxel.Water}
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				if _, err := g.Set(voxel.Pos{X: x, Y: y, Z: z}, mats[r.Intn(len(mats))]); err != nil {
					panic(err)
				}
			}
		}
	}
	return g
}

func TestGreedyCoversNaiveFaces(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		g := randomGrid(12, seed)
		nbs := airNeighbors(12)
		nbs[voxel.NegX] = nil
		nbs[voxel.PosZ] = voxel.UniformPlane(12, voxel.Stone)
		in := Input{Grid: g, Neighbors: nbs}

		greedy := New(true).Build(in)
		naive := New(false).Build(in)
		ga, na := quadArea(greedy), quadArea(naive)
		for mat, want := range na {
			if ga[mat] != want {
				t.Fatalf("seed %d %v: greedy area=%d naive faces=%d", seed, mat, ga[mat], want)
			}
		}
		if len(ga) != len(na) {
			t.Fatalf("seed %d: materials greedy=%v naive=%v", seed, ga, na)
		}
		if greedy.Quads() > naive.Quads() {
			t.Fatalf("seed %d: greedy %d quads > naive %d", seed, greedy.Quads(), naive.Quads())
		}
	}
}

func TestWindingFacesOutward(t *testing.T) {
	m := New(true).Build(Input{Grid: randomGrid(8, 7), Neighbors: airNeighbors(8)})
	if m.Empty() {
		t.Fatalf("expected geometry")
	}
	for tri := 0; tri < len(m.Indices)/3; tri++ {
		a := m.Vertices[m.Indices[3*tri]]
		b := m.Vertices[m.Indices[3*tri+1]]
		c := m.Vertices[m.Indices[3*tri+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		if n.Dot(a.Normal) <= 0 {
			t.Fatalf("triangle %d winds against normal %v", tri, a.Normal)
		}
	}
}

func TestChunkBorderConsistency(t *testing.T) {
	const n = 8
	a := randomGrid(n, 11)
	b := randomGrid(n, 12)

	// b sits at +X of a.
	aNbs, bNbs := airNeighbors(n), airNeighbors(n)
	aNbs[voxel.PosX] = b.Layer(0, 0)
	bNbs[voxel.NegX] = a.Layer(0, n-1)

	ma := New(false).Build(Input{Grid: a, Neighbors: aNbs})
	mb := New(false).Build(Input{Grid: b, Neighbors: bNbs})

	type yz struct{ y, z int }
	facesOn := func(m *Mesh, x float32, nx float32) map[yz]bool {
		out := map[yz]bool{}
		for q := 0; q < m.Quads(); q++ {
			v := m.Vertices[4*q]
			if v.Normal.X() == nx && v.Position.X() == x {
				out[yz{int(v.Position.Y()), int(v.Position.Z())}] = true
			}
		}
		return out
	}
	fa := facesOn(ma, n, 1)
	fb := facesOn(mb, 0, -1)
	for y := 0; y < n; y++ {
		for z := 0; z < n; z++ {
			sa := a.At(n-1, y, z).Solid()
			sb := b.At(0, y, z).Solid()
			k := yz{y, z}
			if fa[k] && fb[k] {
				t.Fatalf("both chunks emit the shared face at y=%d z=%d", y, z)
			}
			if fa[k] != (sa && !sb) || fb[k] != (sb && !sa) {
				t.Fatalf("y=%d z=%d: a face=%v b face=%v for solid a=%v b=%v", y, z, fa[k], fb[k], sa, sb)
			}
		}
	}
}

func TestNewer(t *testing.T) {
	old := &Mesh{Version: 2, Epoch: 5}
	if !(&Mesh{Version: 3, Epoch: 1}).Newer(old) {
		t.Fatalf("higher version should be newer")
	}
	if !(&Mesh{Version: 2, Epoch: 6}).Newer(old) {
		t.Fatalf("same version, later epoch should be newer")
	}
	if (&Mesh{Version: 2, Epoch: 5}).Newer(old) {
		t.Fatalf("identical mesh is not newer")
	}
}
