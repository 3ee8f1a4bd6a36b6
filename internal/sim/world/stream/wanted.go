package stream

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/world/logic/mathx"
	"voxelworld.dev/internal/sim/world/voxel"
)

// ComputeWantedChunks lists the chunks within radius of center, nearest
// first. Distance is Euclidean in chunk units; vertical > 0 additionally
// limits |dy|.
func ComputeWantedChunks(center voxel.ChunkCoord, radius, vertical int) []voxel.ChunkCoord {
	if radius < 0 {
		radius = 0
	}
	vr := radius
	if vertical > 0 {
		vr = mathx.ClampInt(vertical, 0, radius)
	}
	type item struct {
		k    voxel.ChunkCoord
		dist int
	}
	r2 := radius * radius
	items := make([]item, 0, (2*radius+1)*(2*radius+1)*(2*vr+1))
	for dy := -vr; dy <= vr; dy++ {
		for dz := -radius; dz <= radius; dz++ {
			for dx := -radius; dx <= radius; dx++ {
				d := dx*dx + dy*dy + dz*dz
				if d > r2 {
					continue
				}
				items = append(items, item{k: center.Add(dx, dy, dz), dist: d})
			}
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		a, b := items[i].k, items[j].k
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	out := make([]voxel.ChunkCoord, 0, len(items))
	for _, it := range items {
		out = append(out, it.k)
	}
	return out
}

// ViewerChunk maps a world-space viewer position to its chunk.
func ViewerChunk(pos mgl32.Vec3, size int) voxel.ChunkCoord {
	c, _ := voxel.Split(voxel.WorldPos{
		X: int(math.Floor(float64(pos.X()))),
		Y: int(math.Floor(float64(pos.Y()))),
		Z: int(math.Floor(float64(pos.Z()))),
	}, size)
	return c
}
