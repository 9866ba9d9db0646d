package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dev server is bound to a local address
	CheckOrigin: func(*http.Request) bool { return true },
}

// message is what the live-reload client understands.
type message struct {
	Type   string   `json:"type"`
	Seq    uint64   `json:"seq"`
	Build  string   `json:"build,omitempty"`
	Chunks []string `json:"chunks,omitempty"`
	Files  []string `json:"files,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// hub fans build notifications out to connected browsers. Slow clients
// miss messages rather than stall the build loop.
type hub struct {
	mu      sync.Mutex
	clients map[chan message]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan message]struct{})}
}

func (h *hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(m message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- m:
		default:
		}
	}
}

func (h *hub) join() chan message {
	ch := make(chan message, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) leave(ch chan message) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	send := h.join()
	defer h.leave(send)
	log.Debug().Str("remote", r.RemoteAddr).Msg("live reload client connected")

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case m := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
