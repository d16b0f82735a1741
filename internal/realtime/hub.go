package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by middleware on the HTTP surface
	},
}

// Subscriber subscribes to palestra status channels (backed by Redis).
type Subscriber interface {
	SubscribePalestra(palestraID uuid.UUID, handler func(StatusEvent)) (cancel func(), err error)
}

type client struct {
	conn *websocket.Conn
	send chan StatusEvent
}

// Hub fans palestra status events out to websocket subscribers. Push is a
// convenience on top of polling: the status endpoint stays authoritative.
type Hub struct {
	mu        sync.Mutex
	palestras map[uuid.UUID]map[*client]struct{}
	subs      map[uuid.UUID]func()
	sub       Subscriber
	logger    *zap.Logger
}

// NewHub creates a websocket hub.
func NewHub(sub Subscriber, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		palestras: make(map[uuid.UUID]map[*client]struct{}),
		subs:      make(map[uuid.UUID]func()),
		sub:       sub,
		logger:    logger,
	}
}

func (h *Hub) register(palestraID uuid.UUID, c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.palestras[palestraID] == nil {
		h.palestras[palestraID] = make(map[*client]struct{})
		cancel, err := h.sub.SubscribePalestra(palestraID, func(ev StatusEvent) {
			h.broadcast(palestraID, ev)
		})
		if err != nil {
			delete(h.palestras, palestraID)
			return err
		}
		h.subs[palestraID] = cancel
	}
	h.palestras[palestraID][c] = struct{}{}
	return nil
}

func (h *Hub) unregister(palestraID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.palestras[palestraID]
	if clients == nil {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.palestras, palestraID)
		if cancel := h.subs[palestraID]; cancel != nil {
			cancel()
			delete(h.subs, palestraID)
		}
	}
}

func (h *Hub) broadcast(palestraID uuid.UUID, ev StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.palestras[palestraID] {
		select {
		case c.send <- ev:
		default: // slow consumer, drop the event
		}
	}
}

// ServeWs handles GET /ws/palestras/:id: upgrades the connection and streams
// status events until the client disconnects.
func (h *Hub) ServeWs() gin.HandlerFunc {
	return func(c *gin.Context) {
		palestraID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid palestra id"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		cl := &client{conn: conn, send: make(chan StatusEvent, 16)}
		if err := h.register(palestraID, cl); err != nil {
			h.logger.Warn("status subscription failed", zap.Error(err), zap.String("palestra_id", palestraID.String()))
			_ = conn.Close()
			return
		}
		go cl.writePump()
		cl.readPump(h, palestraID)
	}
}

func (c *client) readPump(h *Hub, palestraID uuid.UUID) {
	defer func() {
		h.unregister(palestraID, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
