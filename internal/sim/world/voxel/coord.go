package voxel

import (
	"fmt"

	"voxelworld.dev/internal/sim/world/logic/mathx"
)

// Pos is a chunk-local voxel position in [0, N).
type Pos struct {
	X, Y, Z int
}

// WorldPos is an absolute voxel position.
type WorldPos struct {
	X, Y, Z int
}

// ChunkCoord identifies a chunk in chunk space.
type ChunkCoord struct {
	X, Y, Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Origin is the world position of the chunk's local (0,0,0).
func (c ChunkCoord) Origin(size int) WorldPos {
	return WorldPos{X: c.X * size, Y: c.Y * size, Z: c.Z * size}
}

func (c ChunkCoord) Add(dx, dy, dz int) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}
}

func (c ChunkCoord) Neighbor(f Face) ChunkCoord {
	d := f.Dir()
	return c.Add(d[0], d[1], d[2])
}

// DistSq is the squared chunk-space distance between two coords.
func (c ChunkCoord) DistSq(o ChunkCoord) int {
	dx, dy, dz := c.X-o.X, c.Y-o.Y, c.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

// Split converts a world position into its chunk coordinate and local position.
func Split(p WorldPos, size int) (ChunkCoord, Pos) {
	return ChunkCoord{
			X: mathx.FloorDiv(p.X, size),
			Y: mathx.FloorDiv(p.Y, size),
			Z: mathx.FloorDiv(p.Z, size),
		}, Pos{
			X: mathx.Mod(p.X, size),
			Y: mathx.Mod(p.Y, size),
			Z: mathx.Mod(p.Z, size),
		}
}

// Face is one of the six axis-aligned directions.
type Face uint8

const (
	PosX Face = iota
	NegX
	PosY
	NegY
	PosZ
	NegZ
)

// Faces lists all six faces in index order.
var Faces = [6]Face{PosX, NegX, PosY, NegY, PosZ, NegZ}

// Axis is 0, 1 or 2 for X, Y, Z.
func (f Face) Axis() int { return int(f) / 2 }

// Sign is +1 for positive faces and -1 for negative ones.
func (f Face) Sign() int {
	if f%2 == 0 {
		return 1
	}
	return -1
}

func (f Face) Opposite() Face { return f ^ 1 }

func (f Face) Dir() [3]int {
	var d [3]int
	d[f.Axis()] = f.Sign()
	return d
}

func (f Face) String() string {
	switch f {
	case PosX:
		return "+X"
	case NegX:
		return "-X"
	case PosY:
		return "+Y"
	case NegY:
		return "-Y"
	case PosZ:
		return "+Z"
	case NegZ:
		return "-Z"
	}
	return "?"
}

// FaceOf reports the face of a chunk that a local position touches along axis,
// and whether it touches one at all.
func FaceOf(p Pos, axis, size int) (Face, bool) {
	v := [3]int{p.X, p.Y, p.Z}[axis]
	switch v {
	case 0:
		return Face(axis*2 + 1), true
	case size - 1:
		return Face(axis * 2), true
	}
	return 0, false
}
