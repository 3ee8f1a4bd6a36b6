package observer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/protocol"
	"voxelworld.dev/internal/sim/encoding"
	"voxelworld.dev/internal/sim/world"
	"voxelworld.dev/internal/sim/world/stream"
	"voxelworld.dev/internal/sim/world/terrain/store"
	"voxelworld.dev/internal/sim/world/voxel"
)

const editTimeout = 2 * time.Second

func (s *Server) handle(ctx context.Context, sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.sendError(ctx, sess, protocol.ErrProtoBadRequest, "bad json")
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.sendError(ctx, sess, protocol.ErrProtoVersion, "unsupported protocol_version")
		return
	}
	switch base.Type {
	case protocol.TypeViewer:
		var m protocol.ViewerMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(ctx, sess, protocol.ErrProtoBadRequest, "bad VIEWER")
			return
		}
		s.handleViewer(sess, m)
	case protocol.TypeEdit:
		var m protocol.EditMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(ctx, sess, protocol.ErrProtoBadRequest, "bad EDIT")
			return
		}
		sess.send(ctx, s.handleEdit(ctx, sess, m))
	case protocol.TypeChunkReq:
		var m protocol.ChunkReqMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.sendError(ctx, sess, protocol.ErrProtoBadRequest, "bad CHUNK_REQ")
			return
		}
		s.handleChunk(ctx, sess, m)
	case protocol.TypeSubscribe:
		// Re-subscribing only changes the radius.
		var m protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &m); err == nil && m.ChunkRadius > 0 {
			center, _ := sess.view()
			sess.setViewer(center, clampRadius(m.ChunkRadius, 0))
		}
	default:
		s.sendError(ctx, sess, protocol.ErrProtoBadRequest, "unknown type "+base.Type)
	}
}

// handleViewer moves the world's streaming center. With several sessions the
// last VIEWER wins; each session still filters pushes by its own center.
func (s *Server) handleViewer(sess *session, m protocol.ViewerMsg) {
	pos := mgl32.Vec3{m.Pos[0], m.Pos[1], m.Pos[2]}
	s.world.SetViewer(pos)
	radius := 0
	if m.Radius > 0 {
		radius = clampRadius(m.Radius, 0)
	}
	sess.setViewer(stream.ViewerChunk(pos, s.world.Config().ChunkSize), radius)
}

func (s *Server) handleEdit(ctx context.Context, sess *session, m protocol.EditMsg) protocol.AckMsg {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          m.ReqID,
	}
	reject := func(code, text string) protocol.AckMsg {
		ack.Code = code
		ack.Message = text
		ack.ServerTick = s.world.CurrentTick()
		return ack
	}
	if !sess.limiter.Allow() {
		return reject(protocol.ErrRateLimit, "too many edits")
	}
	resp := make(chan world.EditResult, 1)
	req := world.EditRequest{
		Pos:    voxel.WorldPos{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]},
		Voxel:  voxel.Voxel(m.Voxel),
		Source: "observer:" + sess.id,
		Resp:   resp,
	}
	if err := s.world.SubmitEdit(req); err != nil {
		return reject(protocol.ErrBusy, err.Error())
	}
	timer := time.NewTimer(editTimeout)
	defer timer.Stop()
	select {
	case r := <-resp:
		if r.Err != nil {
			return reject(editCode(r.Err), r.Err.Error())
		}
		ack.Accepted = true
		ack.Prev = uint16(r.Prev)
		ack.ServerTick = s.world.CurrentTick()
		return ack
	case <-timer.C:
		return reject(protocol.ErrTimeout, "edit not applied in time")
	case <-ctx.Done():
		return reject(protocol.ErrInternal, "session closed")
	}
}

func editCode(err error) string {
	switch {
	case errors.Is(err, store.ErrNotLoaded):
		return protocol.ErrNotLoaded
	case errors.Is(err, voxel.ErrOutOfBounds):
		return protocol.ErrOutOfBounds
	case errors.Is(err, store.ErrClosed):
		return protocol.ErrInternal
	default:
		return protocol.ErrBadRequest
	}
}

func (s *Server) handleChunk(ctx context.Context, sess *session, m protocol.ChunkReqMsg) {
	coord := voxel.ChunkCoord{X: m.Coord[0], Y: m.Coord[1], Z: m.Coord[2]}
	grid, version, err := s.world.ChunkVoxels(coord)
	if err != nil {
		s.sendError(ctx, sess, editCode(err), err.Error())
		return
	}
	sess.send(ctx, protocol.ChunkMsg{
		Type:            protocol.TypeChunk,
		ProtocolVersion: protocol.Version,
		Coord:           m.Coord,
		Version:         version,
		Size:            grid.Size(),
		Encoding:        protocol.ChunkEncoding,
		Data:            encoding.EncodeGrid(grid),
	})
}

func (s *Server) sendError(ctx context.Context, sess *session, code, text string) {
	sess.send(ctx, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         text,
	})
}
