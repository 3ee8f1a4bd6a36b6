package protocol

// SUBSCRIBE (client -> server). Must be the first frame on a connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// ChunkRadius limits which meshes are pushed, in chunks around the viewer.
	ChunkRadius int `json:"chunk_radius,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	ChunkSize  int   `json:"chunk_size"`
	Seed       int64 `json:"seed"`
	LoadRadius int   `json:"load_radius"`
}

// BootstrapResponse is served on GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Palette         []string    `json:"palette"`
}

// VIEWER (client -> server)
type ViewerMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [3]float32 `json:"pos"`
	Radius          int        `json:"radius,omitempty"`
}

// EDIT (client -> server)
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Pos             [3]int `json:"pos"`
	Voxel           uint16 `json:"voxel"`
}

// ACK (server -> client) answers an EDIT.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Prev            uint16 `json:"prev,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// CHUNK_REQ (client -> server)
type ChunkReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Coord           [3]int `json:"coord"`
}

// CHUNK (server -> client): raw voxels of a resident chunk.
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Coord           [3]int `json:"coord"`
	Version         uint64 `json:"version"`
	Size            int    `json:"size"`
	// Encoding is always "RLE_UVARINT_B64": base64 of (voxel id, run) uvarint
	// pairs, x varying fastest, then y, then z.
	Encoding string `json:"encoding"`
	Data     string `json:"data"`
}

// ERROR (server -> client) for requests that have no ACK of their own.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
