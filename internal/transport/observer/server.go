package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelworld.dev/internal/protocol"
	"voxelworld.dev/internal/sim/world"
	"voxelworld.dev/internal/sim/world/logic/mathx"
	"voxelworld.dev/internal/sim/world/stream"
)

type Options struct {
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
	// EditRate is the sustained EDIT rate per connection, in edits/second.
	EditRate  float64
	EditBurst int
	// PollInterval is how often sessions check the mesh cache for changes.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.EditRate <= 0 {
		o.EditRate = 20
	}
	if o.EditBurst <= 0 {
		o.EditBurst = 10
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	return o
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	return &Server{
		world: w,
		log:   logger,
		opts:  opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Routes registers the observer endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/ws", s.WSHandler())
}

func (s *Server) worldParams() protocol.WorldParams {
	p := s.world.Params()
	return protocol.WorldParams{
		TickRateHz: p.TickRateHz,
		ChunkSize:  p.ChunkSize,
		Seed:       p.Seed,
		LoadRadius: p.LoadRadius,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			WorldID:         s.world.ID(),
			Tick:            s.world.CurrentTick(),
			WorldParams:     s.worldParams(),
			Palette:         s.world.Params().Palette,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		size := s.world.Config().ChunkSize
		radius := clampRadius(sub.ChunkRadius, s.world.Params().LoadRadius)
		sess := newSession(uuid.NewString(), stream.ViewerChunk(s.world.Viewer(), size), radius)
		sess.limiter = rate.NewLimiter(rate.Limit(s.opts.EditRate), s.opts.EditBurst)

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       sess.id,
			WorldID:         s.world.ID(),
			Tick:            s.world.CurrentTick(),
			WorldParams:     s.worldParams(),
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		s.log.Printf("session %s open client=%q radius=%d", sess.id, sub.ClientName, radius)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						writeErr <- err
						return
					}
				}
			}
		}()

		go s.pushLoop(ctx, sess)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handle(ctx, sess, msg)
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")
		s.log.Printf("session %s closed", sess.id)

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// pushLoop streams mesh changes to one session until ctx ends.
func (s *Server) pushLoop(ctx context.Context, sess *session) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	cache := s.world.Meshes()
	var lastSeq uint64
	first := true
	for {
		seq := cache.Seq()
		if first || seq != lastSeq || sess.takeMoved() {
			for _, m := range sess.diff(cache.Snapshot(), s.world.CurrentTick()) {
				if !sess.send(ctx, m) {
					return
				}
			}
			lastSeq = seq
			first = false
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func clampRadius(r, def int) int {
	if r <= 0 {
		r = def
	}
	return mathx.ClampInt(r, 0, 32)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
