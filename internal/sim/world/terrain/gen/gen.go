package gen

import (
	"errors"
	"fmt"
	"math"

	"github.com/ojrac/opensimplex-go"

	"voxelworld.dev/internal/sim/world/logic/mathx"
	"voxelworld.dev/internal/sim/world/voxel"
)

// ErrGeneration means the generator could not produce a chunk. Generation is
// pure, so this always points at a caller bug (nil or mis-sized grid).
var ErrGeneration = errors.New("terrain: generation failure")

// Params tunes the terrain. The zero value is not useful; start from Defaults.
type Params struct {
	Seed int64

	// Height field (fractal noise over x,z).
	Frequency   float64
	Amplitude   float64
	Octaves     int
	Persistence float64
	Lacunarity  float64
	BaseHeight  int

	// Material rule by depth below the surface.
	DirtDepth   int
	SnowLine    int // surface at or above this is snow; 0 disables
	BeachHeight int // surface at or below this is sand

	// 3D cave carving below the surface; CaveThreshold <= 0 disables.
	CaveFrequency float64
	CaveThreshold float64

	OrePermille int
}

func Defaults() Params {
	return Params{
		Seed:          1337,
		Frequency:     0.008,
		Amplitude:     24,
		Octaves:       4,
		Persistence:   0.5,
		Lacunarity:    2.0,
		BaseHeight:    0,
		DirtDepth:     3,
		SnowLine:      18,
		BeachHeight:   -6,
		CaveFrequency: 0.045,
		CaveThreshold: 0.62,
		OrePermille:   8,
	}
}

// Generator is a deterministic voxel function of (seed, world position).
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	p      Params
	height opensimplex.Noise
	caves  opensimplex.Noise
	norm   float64
}

func New(p Params) (*Generator, error) {
	if p.Octaves < 1 {
		return nil, fmt.Errorf("terrain: octaves must be >= 1, got %d", p.Octaves)
	}
	if p.Frequency <= 0 {
		return nil, fmt.Errorf("terrain: frequency must be > 0, got %v", p.Frequency)
	}
	if p.Amplitude < 0 || p.DirtDepth < 0 {
		return nil, fmt.Errorf("terrain: amplitude and dirt depth must be >= 0")
	}
	norm, amp := 0.0, 1.0
	for o := 0; o < p.Octaves; o++ {
		norm += amp
		amp *= p.Persistence
	}
	if norm <= 0 {
		return nil, fmt.Errorf("terrain: persistence %v yields no signal", p.Persistence)
	}
	return &Generator{
		p:      p,
		height: opensimplex.New(p.Seed),
		caves:  opensimplex.New(p.Seed ^ 0x5eed_cafe),
		norm:   norm,
	}, nil
}

func (g *Generator) Params() Params { return g.p }

// HeightAt is the surface height (y of the topmost terrain voxel) at x,z.
func (g *Generator) HeightAt(x, z int) int {
	freq, amp, sum := g.p.Frequency, 1.0, 0.0
	for o := 0; o < g.p.Octaves; o++ {
		sum += amp * g.height.Eval2(float64(x)*freq, float64(z)*freq)
		amp *= g.p.Persistence
		freq *= g.p.Lacunarity
	}
	n := sum / g.norm
	return g.p.BaseHeight + int(math.Floor(n*g.p.Amplitude))
}

// MaxHeight bounds HeightAt from above.
func (g *Generator) MaxHeight() int {
	return g.p.BaseHeight + int(math.Ceil(g.p.Amplitude))
}

// Generate returns the voxel at a world position.
func (g *Generator) Generate(x, y, z int) voxel.Voxel {
	if y > g.MaxHeight() {
		return voxel.Air
	}
	return g.material(x, y, z, g.HeightAt(x, z))
}

func (g *Generator) material(x, y, z, height int) voxel.Voxel {
	if y > height {
		return voxel.Air
	}
	depth := height - y
	if depth > 0 && g.carved(x, y, z) {
		return voxel.Air
	}
	switch {
	case depth == 0:
		if g.p.SnowLine != 0 && height >= g.p.SnowLine {
			return voxel.Snow
		}
		if height <= g.p.BeachHeight {
			return voxel.Sand
		}
		return voxel.Grass
	case depth <= g.p.DirtDepth:
		if height <= g.p.BeachHeight {
			return voxel.Sand
		}
		return voxel.Dirt
	}
	if g.p.OrePermille > 0 {
		roll := int(mathx.Hash3(g.p.Seed+104, x, y, z) % 1000)
		if roll < g.p.OrePermille {
			if roll*3 < g.p.OrePermille*2 {
				return voxel.CoalOre
			}
			return voxel.IronOre
		}
	}
	return voxel.Stone
}

func (g *Generator) carved(x, y, z int) bool {
	if g.p.CaveThreshold <= 0 || g.p.CaveFrequency <= 0 {
		return false
	}
	f := g.p.CaveFrequency
	return g.caves.Eval3(float64(x)*f, float64(y)*f, float64(z)*f) > g.p.CaveThreshold
}

// FillChunk populates grid with the chunk at coord. The height field is
// evaluated once per column instead of once per voxel.
func (g *Generator) FillChunk(coord voxel.ChunkCoord, grid *voxel.Grid) error {
	if grid == nil {
		return fmt.Errorf("%w: nil grid for chunk %v", ErrGeneration, coord)
	}
	n := grid.Size()
	o := coord.Origin(n)
	if o.Y > g.MaxHeight() {
		grid.Fill(voxel.Air)
		return nil
	}
	for lz := 0; lz < n; lz++ {
		wz := o.Z + lz
		for lx := 0; lx < n; lx++ {
			wx := o.X + lx
			h := g.HeightAt(wx, wz)
			grid.Column(lx, lz, func(ly int) voxel.Voxel {
				return g.material(wx, o.Y+ly, wz, h)
			})
		}
	}
	return nil
}
