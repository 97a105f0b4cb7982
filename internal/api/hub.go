package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sympfindx-server/internal/domain"
	"github.com/sympfindx-server/internal/middleware"
)

// EventType defines the type of a WebSocket event.
type EventType string

const (
	// EventCaseCreated goes to connected specialists when a new case enters
	// the review queue.
	EventCaseCreated EventType = "case_created"
	// EventCaseReviewed goes to the case owner and to connected specialists
	// when a review lands.
	EventCaseReviewed EventType = "case_reviewed"
)

// Event is the WebSocket envelope format.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// caseEvent is the payload for case lifecycle events.
type caseEvent struct {
	CaseID         string  `json:"case_id"`
	PredictedLabel string  `json:"predicted_label"`
	RiskTier       string  `json:"risk_tier"`
	Urgency        string  `json:"urgency"`
	SpecialistType string  `json:"specialist_type"`
	Status         string  `json:"status"`
	Recommended    bool    `json:"recommended"`
	Confidence     float64 `json:"confidence"`
}

// Connection represents one WebSocket subscriber.
type Connection struct {
	ActorID string
	Role    domain.Role
	Send    chan []byte
}

// broadcastMessage routes an event to its audience.
type broadcastMessage struct {
	toActor       string // non-empty: deliver to this actor's connections
	toSpecialists bool   // deliver to every connected specialist
	event         *Event
}

// Hub fans case lifecycle events out to connected clients: specialists
// watching the review queue and patients watching their own case.
type Hub struct {
	logger *logrus.Logger

	mu    sync.RWMutex
	conns map[string]map[*Connection]struct{} // actorID -> connections

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *broadcastMessage
}

// NewHub creates the hub and starts its dispatch loop.
func NewHub(logger *logrus.Logger) *Hub {
	h := &Hub{
		logger:     logger,
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *broadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.ActorID] == nil {
				h.conns[conn.ActorID] = make(map[*Connection]struct{})
			}
			h.conns[conn.ActorID][conn] = struct{}{}
			h.mu.Unlock()
			h.logger.WithFields(logrus.Fields{
				"actor_id": conn.ActorID,
				"role":     conn.Role,
			}).Debug("WebSocket client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[conn.ActorID]; ok {
				if _, ok := set[conn]; ok {
					delete(set, conn)
					close(conn.Send)
					if len(set) == 0 {
						delete(h.conns, conn.ActorID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.event)
			if err != nil {
				h.logger.WithError(err).Warn("Failed to encode WebSocket event")
				continue
			}

			h.mu.RLock()
			for actorID, set := range h.conns {
				for conn := range set {
					deliver := (msg.toActor != "" && actorID == msg.toActor) ||
						(msg.toSpecialists && conn.Role == domain.RoleSpecialist)
					if !deliver {
						continue
					}
					select {
					case conn.Send <- data:
					default:
						// Drop when the client cannot keep up.
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func caseEventPayload(record *domain.CaseRecord) json.RawMessage {
	payload, _ := json.Marshal(caseEvent{
		CaseID:         record.ID,
		PredictedLabel: record.Fusion.PredictedLabel,
		RiskTier:       record.Fusion.RiskTier.String(),
		Urgency:        record.Routing.Urgency.String(),
		SpecialistType: record.Routing.SpecialistType,
		Status:         record.Status.String(),
		Recommended:    record.Routing.Recommended,
		Confidence:     record.Fusion.OverallConfidence,
	})
	return payload
}

// NotifyCaseCreated implements service.Notifier.
func (h *Hub) NotifyCaseCreated(record *domain.CaseRecord) {
	h.broadcast <- &broadcastMessage{
		toSpecialists: true,
		event:         &Event{Type: EventCaseCreated, Payload: caseEventPayload(record)},
	}
}

// NotifyCaseReviewed implements service.Notifier.
func (h *Hub) NotifyCaseReviewed(record *domain.CaseRecord) {
	h.broadcast <- &broadcastMessage{
		toActor:       record.OwnerID,
		toSpecialists: true,
		event:         &Event{Type: EventCaseReviewed, Payload: caseEventPayload(record)},
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Identity comes from the gateway headers, not the origin.
		return true
	},
}

// ServeWS upgrades the request and subscribes the caller to case events.
func (h *Hub) ServeWS(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	conn := &Connection{
		ActorID: actor.ID,
		Role:    actor.Role,
		Send:    make(chan []byte, 256),
	}
	h.register <- conn

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Hub) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.unregister <- conn
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients only listen; inbound messages are drained for control
		// frames and otherwise ignored.
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Debug("WebSocket read error")
			}
			break
		}
	}
}

func (h *Hub) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
