package voxel

import (
	"errors"
	"fmt"
)

var ErrOutOfBounds = errors.New("voxel: local coordinate out of bounds")

// Grid is a dense N×N×N voxel array, x fastest, then y, then z.
type Grid struct {
	size  int
	cells []Voxel
}

func NewGrid(size int) *Grid {
	if size <= 0 {
		panic(fmt.Sprintf("voxel: invalid grid size %d", size))
	}
	return &Grid{
		size:  size,
		cells: make([]Voxel, size*size*size),
	}
}

func (g *Grid) Size() int { return g.size }

func (g *Grid) InBounds(p Pos) bool {
	return uint(p.X) < uint(g.size) && uint(p.Y) < uint(g.size) && uint(p.Z) < uint(g.size)
}

func (g *Grid) index(x, y, z int) int {
	return x + g.size*(y+g.size*z)
}

func (g *Grid) Get(p Pos) (Voxel, error) {
	if !g.InBounds(p) {
		return Air, fmt.Errorf("%w: %+v (size %d)", ErrOutOfBounds, p, g.size)
	}
	return g.cells[g.index(p.X, p.Y, p.Z)], nil
}

// Set stores v at p and returns the previous value.
func (g *Grid) Set(p Pos, v Voxel) (Voxel, error) {
	if !g.InBounds(p) {
		return Air, fmt.Errorf("%w: %+v (size %d)", ErrOutOfBounds, p, g.size)
	}
	i := g.index(p.X, p.Y, p.Z)
	prev := g.cells[i]
	g.cells[i] = v
	return prev, nil
}

// At is the unchecked accessor for hot loops; the caller guarantees range.
func (g *Grid) At(x, y, z int) Voxel {
	return g.cells[g.index(x, y, z)]
}

func (g *Grid) put(x, y, z int, v Voxel) {
	g.cells[g.index(x, y, z)] = v
}

// Column writes voxels for y in [0, N) at (x, z) by calling fn per level.
func (g *Grid) Column(x, z int, fn func(y int) Voxel) {
	for y := 0; y < g.size; y++ {
		g.put(x, y, z, fn(y))
	}
}

func (g *Grid) Fill(v Voxel) {
	for i := range g.cells {
		g.cells[i] = v
	}
}

func (g *Grid) Clone() *Grid {
	cells := make([]Voxel, len(g.cells))
	copy(cells, g.cells)
	return &Grid{size: g.size, cells: cells}
}

// Uniform reports whether every cell holds the same value.
func (g *Grid) Uniform() (Voxel, bool) {
	first := g.cells[0]
	for _, v := range g.cells[1:] {
		if v != first {
			return Air, false
		}
	}
	return first, true
}

// Cells exposes the backing slice in index order. Callers must not retain it
// across mutations.
func (g *Grid) Cells() []Voxel { return g.cells }

// Layer copies the N×N slice at index i along axis. The plane's u axis is
// (axis+1)%3 and its v axis is (axis+2)%3.
func (g *Grid) Layer(axis, i int) *Plane {
	p := NewPlane(g.size)
	var c [3]int
	c[axis] = i
	ua, va := (axis+1)%3, (axis+2)%3
	for u := 0; u < g.size; u++ {
		c[ua] = u
		for v := 0; v < g.size; v++ {
			c[va] = v
			p.cells[u*g.size+v] = g.At(c[0], c[1], c[2])
		}
	}
	return p
}

// Plane is a read-only N×N boundary slice of a neighboring grid.
type Plane struct {
	size  int
	cells []Voxel
}

func NewPlane(size int) *Plane {
	return &Plane{size: size, cells: make([]Voxel, size*size)}
}

func (p *Plane) Size() int { return p.size }

func (p *Plane) At(u, v int) Voxel {
	return p.cells[u*p.size+v]
}

func (p *Plane) Set(u, v int, val Voxel) {
	p.cells[u*p.size+v] = val
}

// UniformPlane returns a plane where every cell is v.
func UniformPlane(size int, v Voxel) *Plane {
	p := NewPlane(size)
	for i := range p.cells {
		p.cells[i] = v
	}
	return p
}
