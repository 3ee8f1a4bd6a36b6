package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/world/voxel"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	// UV spans the quad in voxel units so textures tile once per voxel.
	UV       mgl32.Vec2
	Material voxel.Voxel
}

// Mesh is immutable once built. Positions are chunk-local; each quad adds
// four vertices and six indices.
type Mesh struct {
	Coord   voxel.ChunkCoord
	Version uint64
	Epoch   uint64

	Vertices []Vertex
	Indices  []uint32
}

func (m *Mesh) Quads() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 6
}

func (m *Mesh) Empty() bool { return m.Quads() == 0 }

// Newer reports whether m was built from later chunk state than o.
func (m *Mesh) Newer(o *Mesh) bool {
	if o == nil {
		return true
	}
	if m.Version != o.Version {
		return m.Version > o.Version
	}
	return m.Epoch > o.Epoch
}

// Input is everything a build reads. Neighbors holds, in voxel.Faces order,
// the adjacent chunk's layer touching this chunk; nil means not loaded.
type Input struct {
	Grid      *voxel.Grid
	Neighbors [6]*voxel.Plane
}

type Mesher struct {
	// Greedy merges coplanar same-material faces. When false every visible
	// face becomes its own quad.
	Greedy bool
}

func New(greedy bool) Mesher { return Mesher{Greedy: greedy} }

// Build produces the surface of in.Grid. Faces toward a missing neighbor are
// left out until that neighbor loads and the chunk is meshed again.
func (m Mesher) Build(in Input) *Mesh {
	out := &Mesh{}
	if in.Grid == nil {
		return out
	}
	if v, ok := in.Grid.Uniform(); ok && !v.Solid() {
		return out
	}
	b := builder{
		n:    in.Grid.Size(),
		grid: in.Grid,
		out:  out,
		mask: make([]voxel.Voxel, in.Grid.Size()*in.Grid.Size()),
	}
	for i, f := range voxel.Faces {
		b.face(f, in.Neighbors[i], m.Greedy)
	}
	return out
}
