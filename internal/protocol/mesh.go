package protocol

// MESH (server -> client). Vertex attributes are flattened: Positions and
// Normals carry 3 floats per vertex, UVs 2, Materials 1.
type MeshMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Coord           [3]int     `json:"coord"`
	Version         uint64     `json:"version"`
	Epoch           uint64     `json:"epoch"`
	Offset          [3]float32 `json:"offset"`
	Positions       []float32  `json:"positions"`
	Normals         []float32  `json:"normals"`
	UVs             []float32  `json:"uvs"`
	Materials       []uint16   `json:"materials"`
	Indices         []uint32   `json:"indices"`
}

// EVICT (server -> client): the chunk's mesh is gone.
type EvictMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Coord           [3]int `json:"coord"`
}
