package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/player"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait          = 10 * time.Second
	notificationBuffer = 16
)

// Event types sent over the websocket.
const (
	EventState        = "state"
	EventNotification = "notification"
)

// Event is one websocket message.
type Event struct {
	Type         string          `json:"type"`
	State        *player.State   `json:"state,omitempty"`
	Notification *notify.Message `json:"notification,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// hub tracks open connections so shutdown can close them.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{clients: make(map[*websocket.Conn]struct{}), logger: logger}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
}

// ServeWS upgrades the request and streams events until the client goes away.
func (s *Server) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return
	}

	s.hub.add(conn)
	defer s.hub.remove(conn)

	sub := s.player.Subscribe()
	defer sub.Cancel()

	var notes <-chan notify.Message
	if s.notifications != nil {
		ch, cancel := s.notifications.Subscribe(notificationBuffer)
		defer cancel()
		notes = ch
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var ev Event
		select {
		case state, ok := <-sub.C:
			if !ok {
				return
			}
			ev = Event{Type: EventState, State: &state}
		case msg, ok := <-notes:
			if !ok {
				return
			}
			ev = Event{Type: EventNotification, Notification: &msg}
		case <-gone:
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}
