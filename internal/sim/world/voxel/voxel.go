package voxel

// Voxel is a material id. The zero value is air.
type Voxel uint16

const (
	Air Voxel = iota
	Stone
	Dirt
	Grass
	Sand
	Snow
	Gravel
	CoalOre
	IronOre
	Log
	Leaves
	Water

	materialCount
)

// Material holds the per-id behavior shared by every voxel of that id.
type Material struct {
	Name  string
	Solid bool
	Color [3]uint8
}

// Materials is indexed by Voxel. Ids past the end behave like air.
var Materials = [materialCount]Material{
	Air:     {Name: "AIR"},
	Stone:   {Name: "STONE", Solid: true, Color: [3]uint8{125, 125, 125}},
	Dirt:    {Name: "DIRT", Solid: true, Color: [3]uint8{134, 96, 67}},
	Grass:   {Name: "GRASS", Solid: true, Color: [3]uint8{95, 159, 53}},
	Sand:    {Name: "SAND", Solid: true, Color: [3]uint8{219, 207, 163}},
	Snow:    {Name: "SNOW", Solid: true, Color: [3]uint8{240, 251, 251}},
	Gravel:  {Name: "GRAVEL", Solid: true, Color: [3]uint8{136, 126, 126}},
	CoalOre: {Name: "COAL_ORE", Solid: true, Color: [3]uint8{60, 60, 60}},
	IronOre: {Name: "IRON_ORE", Solid: true, Color: [3]uint8{175, 142, 119}},
	Log:     {Name: "LOG", Solid: true, Color: [3]uint8{102, 81, 51}},
	Leaves:  {Name: "LEAVES", Solid: true, Color: [3]uint8{60, 120, 40}},
	Water:   {Name: "WATER", Color: [3]uint8{47, 67, 244}},
}

func (v Voxel) Material() Material {
	if int(v) >= len(Materials) {
		return Materials[Air]
	}
	return Materials[v]
}

// Solid reports whether the voxel occludes its neighbors and produces faces.
func (v Voxel) Solid() bool {
	return int(v) < len(Materials) && Materials[v].Solid
}

func (v Voxel) Valid() bool {
	return int(v) < len(Materials)
}

func (v Voxel) String() string {
	return v.Material().Name
}

// Palette returns material names in id order.
func Palette() []string {
	out := make([]string, len(Materials))
	for i, m := range Materials {
		out[i] = m.Name
	}
	return out
}
