package wstest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/large-farva/task-tracker/internal/protocol"
)

// Server is a WebSocket endpoint that speaks the notification stream
// protocol. It checks the api_key query parameter, answers pings with
// pongs, and fans broadcast frames out to every client.
type Server struct {
	APIKey string

	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	direct     chan directFrame
	drop       chan struct{}
	upgrader   websocket.Upgrader

	connected atomic.Int32

	mu       sync.Mutex
	received [][]byte
}

type directFrame struct {
	conn *websocket.Conn
	msg  []byte
}

// NewServer allocates a server that accepts apiKey. Call Run to start its
// loop.
func NewServer(apiKey string) *Server {
	return &Server{
		APIKey:     apiKey,
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan directFrame, 64),
		drop:       make(chan struct{}, 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start runs s behind an httptest server for the lifetime of t and returns
// the ws:// URL of the stream endpoint.
func Start(t testing.TB, apiKey string) (*Server, string) {
	t.Helper()

	s := NewServer(apiKey)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())
	hs := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-done
		hs.Close()
	})
	return s, "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
}

// Run owns every client connection: all writes happen here. Clients are
// closed when ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range s.clients {
				_ = c.Close()
			}
			return

		case c := <-s.register:
			s.clients[c] = struct{}{}
			s.connected.Store(int32(len(s.clients)))

		case c := <-s.unregister:
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				_ = c.Close()
			}
			s.connected.Store(int32(len(s.clients)))

		case f := <-s.direct:
			if _, ok := s.clients[f.conn]; ok {
				s.write(f.conn, f.msg)
			}

		case msg := <-s.broadcast:
			for c := range s.clients {
				s.write(c, msg)
			}

		case <-s.drop:
			// Abrupt close with no close frame: clients see 1006.
			for c := range s.clients {
				delete(s.clients, c)
				_ = c.Close()
			}
			s.connected.Store(0)
		}
	}
}

func (s *Server) write(c *websocket.Conn, msg []byte) {
	_ = c.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
		delete(s.clients, c)
		_ = c.Close()
		s.connected.Store(int32(len(s.clients)))
	}
}

// Handler upgrades requests, sends the connection handshake messages, and
// registers authenticated clients. Clients with a wrong key receive an
// error connection message and are not registered.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}

		project := r.URL.Query().Get("project")
		if r.URL.Query().Get("api_key") != s.APIKey {
			_ = conn.WriteMessage(websocket.TextMessage, envelope(protocol.TypeConnection, protocol.Connection{
				Status:  protocol.ConnectionError,
				Message: "Invalid API key",
			}))
			// Leave the close to the client.
			go drain(conn)
			return
		}

		_ = conn.WriteMessage(websocket.TextMessage, envelope(protocol.TypeConnection, protocol.Connection{
			Status:      protocol.ConnectionConnected,
			Message:     "Connected",
			ProjectName: project,
		}))
		_ = conn.WriteMessage(websocket.TextMessage, envelope(protocol.TypeConnection, protocol.Connection{
			Status:      protocol.ConnectionAuthenticated,
			Message:     "Authenticated",
			ProjectName: project,
			UserID:      "user-1",
		}))
		s.register <- conn

		go func() {
			defer func() { s.unregister <- conn }()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				s.record(data)

				var in struct {
					Type protocol.Type `json:"type"`
				}
				if json.Unmarshal(data, &in) == nil && in.Type == protocol.TypePing {
					select {
					case s.direct <- directFrame{conn: conn, msg: pong(data)}:
					default:
					}
				}
			}
		}()
	})
}

// BroadcastJSON marshals v and queues it for every client. The frame is
// dropped if the queue is full.
func (s *Server) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.BroadcastRaw(b)
}

// BroadcastRaw queues frame verbatim for every client.
func (s *Server) BroadcastRaw(frame []byte) {
	select {
	case s.broadcast <- frame:
	default:
	}
}

// Emit broadcasts a message envelope of the given type.
func (s *Server) Emit(typ protocol.Type, data any) {
	s.BroadcastRaw(envelope(typ, data))
}

// DropAll closes every client connection without a close frame.
func (s *Server) DropAll() {
	select {
	case s.drop <- struct{}{}:
	default:
	}
}

// Clients returns the number of registered clients.
func (s *Server) Clients() int {
	return int(s.connected.Load())
}

// Received returns every frame clients have sent.
func (s *Server) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received...)
}

func (s *Server) record(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, data)
}

func envelope(typ protocol.Type, data any) []byte {
	b, err := json.Marshal(map[string]any{
		"type":      typ,
		"timestamp": protocol.NowTS(),
		"data":      data,
	})
	if err != nil {
		panic(err)
	}
	return b
}

// pong mirrors the tracker server, which echoes the whole ping frame in
// a top-level timestamp field.
func pong(ping []byte) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":      protocol.TypePong,
		"message":   "pong",
		"timestamp": string(ping),
	})
	return b
}

func drain(conn *websocket.Conn) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
