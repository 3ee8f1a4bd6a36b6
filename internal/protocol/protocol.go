package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeWelcome   = "WELCOME"
	TypeViewer    = "VIEWER"
	TypeEdit      = "EDIT"
	TypeAck       = "ACK"
	TypeMesh      = "MESH"
	TypeEvict     = "EVICT"
	TypeChunkReq  = "CHUNK_REQ"
	TypeChunk     = "CHUNK"
	TypeError     = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// ChunkEncoding names the CHUNK payload format.
const ChunkEncoding = "RLE_UVARINT_B64"
