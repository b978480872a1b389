package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Connectioner interface {
	SendMessage(message []byte) error
	Close() error
}

type Huber interface {
	http.Handler
	JoinChannel(channel string, conn *Connection)
	LeaveChannel(channel string, conn *Connection)
	ConnectionsInChannel(channel string) []*Connection
	BroadcastToChannel(channel string, message []byte)
	ConnectionsAll() []*Connection
}

type HubOptions struct {
	Logger       *logrus.Logger
	CheckOrigin  func(r *http.Request) bool
	OnConnect    func(r *http.Request, hub *Hub, conn *Connection) error
	OnDisconnect func(conn *Connection)
}

type Hub struct {
	upgrader     websocket.Upgrader
	logger       *logrus.Logger
	onConnect    func(r *http.Request, hub *Hub, conn *Connection) error
	onDisconnect func(conn *Connection)

	mu       sync.RWMutex
	channels map[string]map[*Connection]struct{}
	conns    map[*Connection]struct{}
}

func NewHub(opts *HubOptions) *Hub {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:       opts.Logger,
		onConnect:    opts.OnConnect,
		onDisconnect: opts.OnDisconnect,
		channels:     make(map[string]map[*Connection]struct{}),
		conns:        make(map[*Connection]struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("failed to upgrade websocket connection")
		return
	}
	conn := newConnection(ws)

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	if h.onConnect != nil {
		if err := h.onConnect(r, h, conn); err != nil {
			h.logger.WithError(err).Error("websocket connect hook failed")
			h.remove(conn)
			_ = conn.Close()
			return
		}
	}

	go conn.writePump()
	go h.readPump(conn)
}

// readPump discards inbound frames. The hub is a one-way event feed;
// clients talk to the HTTP API.
func (h *Hub) readPump(conn *Connection) {
	defer func() {
		h.remove(conn)
		_ = conn.Close()
		if h.onDisconnect != nil {
			h.onDisconnect(conn)
		}
	}()
	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
	for channel, members := range h.channels {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) JoinChannel(channel string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Connection]struct{})
		h.channels[channel] = members
	}
	members[conn] = struct{}{}
}

func (h *Hub) LeaveChannel(channel string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.channels[channel]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) ConnectionsInChannel(channel string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.channels[channel]
	out := make([]*Connection, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) ConnectionsAll() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.conns))
	for conn := range h.conns {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) BroadcastToChannel(channel string, message []byte) {
	for _, conn := range h.ConnectionsInChannel(channel) {
		if err := conn.SendMessage(message); err != nil {
			h.logger.WithError(err).Debug("dropping websocket message")
		}
	}
}

type Connection struct {
	ws      *websocket.Conn
	send    chan []byte
	closeMu sync.Once
	done    chan struct{}
}

func newConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ws:   ws,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *Connection) SendMessage(message []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- message:
		return nil
	default:
		// Slow consumer; drop rather than block the hub.
		return websocket.ErrCloseSent
	}
}

func (c *Connection) writePump() {
	for {
		select {
		case message := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) Close() error {
	var err error
	c.closeMu.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
