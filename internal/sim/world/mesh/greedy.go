package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/world/voxel"
)

type builder struct {
	n    int
	grid *voxel.Grid
	out  *Mesh
	mask []voxel.Voxel
}

// cell maps (depth, u, v) on axis back to x, y, z.
func cell(axis, d, u, v int) (x, y, z int) {
	var p [3]int
	p[axis] = d
	p[(axis+1)%3] = u
	p[(axis+2)%3] = v
	return p[0], p[1], p[2]
}

// face walks every slice perpendicular to f and emits its visible faces.
func (b *builder) face(f voxel.Face, border *voxel.Plane, greedy bool) {
	n := b.n
	axis, sign := f.Axis(), f.Sign()
	for d := 0; d < n; d++ {
		across := d + sign
		outside := across < 0 || across >= n
		if outside && border == nil {
			continue
		}
		visible := false
		for u := 0; u < n; u++ {
			for v := 0; v < n; v++ {
				x, y, z := cell(axis, d, u, v)
				cur := b.grid.At(x, y, z)
				var nb voxel.Voxel
				if outside {
					nb = border.At(u, v)
				} else {
					ax, ay, az := cell(axis, across, u, v)
					nb = b.grid.At(ax, ay, az)
				}
				if cur.Solid() && !nb.Solid() {
					b.mask[u*n+v] = cur
					visible = true
				} else {
					b.mask[u*n+v] = voxel.Air
				}
			}
		}
		if !visible {
			continue
		}
		plane := d
		if sign > 0 {
			plane = d + 1
		}
		if greedy {
			b.merge(f, plane)
		} else {
			b.each(f, plane)
		}
	}
}

// merge consumes the mask: a run of one material along u, then as many
// full rows of that run along v as fit.
func (b *builder) merge(f voxel.Face, plane int) {
	n := b.n
	for v := 0; v < n; v++ {
		for u := 0; u < n; {
			m := b.mask[u*n+v]
			if m == voxel.Air {
				u++
				continue
			}
			w := 1
			for u+w < n && b.mask[(u+w)*n+v] == m {
				w++
			}
			h := 1
		grow:
			for v+h < n {
				for k := 0; k < w; k++ {
					if b.mask[(u+k)*n+v+h] != m {
						break grow
					}
				}
				h++
			}
			for du := 0; du < w; du++ {
				for dv := 0; dv < h; dv++ {
					b.mask[(u+du)*n+v+dv] = voxel.Air
				}
			}
			b.quad(f, plane, u, v, w, h, m)
			u += w
		}
	}
}

func (b *builder) each(f voxel.Face, plane int) {
	n := b.n
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if m := b.mask[u*n+v]; m != voxel.Air {
				b.quad(f, plane, u, v, 1, 1, m)
			}
		}
	}
}

// quad appends a w x h rectangle whose corner sits at (u, v) on the given
// plane. Corners go p, p+du, p+du+dv, p+dv; du x dv points along +axis, so
// negative faces use the reversed triangle order to stay CCW from outside.
func (b *builder) quad(f voxel.Face, plane, u, v, w, h int, m voxel.Voxel) {
	axis := f.Axis()
	ua, va := (axis+1)%3, (axis+2)%3

	var p, du, dv mgl32.Vec3
	p[axis] = float32(plane)
	p[ua] = float32(u)
	p[va] = float32(v)
	du[ua] = float32(w)
	dv[va] = float32(h)

	dir := f.Dir()
	normal := mgl32.Vec3{float32(dir[0]), float32(dir[1]), float32(dir[2])}

	base := uint32(len(b.out.Vertices))
	b.out.Vertices = append(b.out.Vertices,
		Vertex{Position: p, Normal: normal, UV: mgl32.Vec2{0, 0}, Material: m},
		Vertex{Position: p.Add(du), Normal: normal, UV: mgl32.Vec2{float32(w), 0}, Material: m},
		Vertex{Position: p.Add(du).Add(dv), Normal: normal, UV: mgl32.Vec2{float32(w), float32(h)}, Material: m},
		Vertex{Position: p.Add(dv), Normal: normal, UV: mgl32.Vec2{0, float32(h)}, Material: m},
	)
	if f.Sign() > 0 {
		b.out.Indices = append(b.out.Indices, base, base+1, base+2, base, base+2, base+3)
	} else {
		b.out.Indices = append(b.out.Indices, base, base+2, base+1, base, base+3, base+2)
	}
}
