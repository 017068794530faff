package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/websocket"
	"github.com/icco/chordcoach/internal/engine"
	"github.com/icco/chordcoach/internal/music"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is a websocket frame sent by a client.
type Message struct {
	Type     string `json:"type"`
	Key      string `json:"key,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
	Pitch    int    `json:"pitch,omitempty"`
	Velocity int    `json:"velocity,omitempty"`
}

const (
	MsgKeyDown    = "keydown"
	MsgKeyUp      = "keyup"
	MsgVisibility = "visibility"
	MsgNoteOn     = "noteon"
	MsgNoteOff    = "noteoff"
)

const (
	sendBuffer = 8
	writeWait  = 2 * time.Second
)

// Hub fans the latest engine state out to every websocket client. Bursts
// of changes are coalesced; a slow client only ever misses intermediate
// states, never the last one.
type Hub struct {
	log      *slog.Logger
	debounce func(func())
	handle   func(Message)

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub that coalesces broadcasts over window and passes
// client messages to handle.
func NewHub(window time.Duration, handle func(Message), logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:      logger,
		debounce: debounce.New(window),
		handle:   handle,
		clients:  make(map[*client]struct{}),
	}
}

// Publish records st as the latest state and schedules a broadcast. It is
// called on the engine loop and never blocks on clients.
func (h *Hub) Publish(st engine.State) {
	b, err := json.Marshal(st)
	if err != nil {
		h.log.Error("web: encode state", slog.Any("error", err))
		return
	}
	h.mu.Lock()
	h.latest = b
	h.mu.Unlock()
	h.debounce(h.flush)
}

func (h *Hub) flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return
	}
	for c := range h.clients {
		h.offer(c, h.latest)
	}
}

// offer queues b for c, replacing the oldest queued frame when full.
// Callers hold h.mu.
func (h *Hub) offer(c *client, b []byte) {
	for {
		select {
		case c.send <- b:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.latest != nil {
		h.offer(c, h.latest)
	}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// serve runs a client until its connection fails.
func (h *Hub) serve(conn *websocket.Conn) {
	c := h.register(conn)
	h.log.Debug("web: client connected", slog.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for b := range c.send {
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				conn.Close()
				for range c.send {
				}
				return
			}
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("web: client read", slog.Any("error", err))
			}
			break
		}
		h.handle(msg)
	}

	h.unregister(c)
	<-done
	conn.Close()
	h.log.Debug("web: client gone", slog.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.serve(conn)
}

// command applies a client message on the engine loop.
func (s *Server) command(msg Message) {
	switch msg.Type {
	case MsgKeyDown:
		s.loop.Post(func() { s.ctl.KeyDown(msg.Key) })
	case MsgKeyUp:
		s.loop.Post(func() { s.ctl.KeyUp(msg.Key) })
	case MsgVisibility:
		if msg.Hidden {
			s.loop.Post(s.ctl.Suspend)
		}
	case MsgNoteOn, MsgNoteOff:
		if msg.Pitch < 0 || msg.Pitch > int(music.MaxPitch) {
			return
		}
		p := music.Pitch(msg.Pitch)
		if msg.Type == MsgNoteOff || msg.Velocity == 0 {
			s.loop.Post(func() { s.ctl.Sink().NoteOff(p) })
			return
		}
		vel := uint8(min(msg.Velocity, 127))
		s.loop.Post(func() { s.ctl.Sink().NoteOn(p, vel) })
	default:
		s.log.Debug("web: unknown message", slog.String("type", msg.Type))
	}
}
