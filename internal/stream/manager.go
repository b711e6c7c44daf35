package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"krishimitra/carbon-registry/registry-backend/internal/ledger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Manager broadcasts every committed ledger event to connected WebSocket
// clients (web and mobile live updates, external indexers). It implements
// ledger.Sink. Slow clients are dropped rather than allowed to block the
// broadcast loop.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection is a single subscribed client.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan ledger.Event
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is delegated to the API gateway.
				return true
			},
		},
	}
}

// Publish fans the event out to every connection.
func (m *Manager) Publish(ev ledger.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		select {
		case conn.Send <- ev:
		default:
			// Buffer full; drop the event for this client.
			m.logger.Warn("dropping event for slow stream client",
				zap.String("connection_id", conn.ID))
		}
	}
}

// HandleConnection upgrades the request and starts the read/write pumps.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan ledger.Event, sendBuffer),
	}

	m.mu.Lock()
	m.connections[conn.ID] = conn
	m.mu.Unlock()

	m.logger.Info("stream client connected", zap.String("connection_id", conn.ID))

	go m.writePump(conn)
	go m.readPump(conn)
	return nil
}

// ConnectionCount reports the number of live subscribers.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *Manager) remove(conn *Connection) {
	m.mu.Lock()
	if _, ok := m.connections[conn.ID]; ok {
		delete(m.connections, conn.ID)
		close(conn.Send)
	}
	m.mu.Unlock()
	conn.Conn.Close()
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.remove(conn)
	}()

	for {
		select {
		case ev, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; the stream is one-way. It exists to
// process control frames and detect closed peers.
func (m *Manager) readPump(conn *Connection) {
	defer m.remove(conn)
	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
