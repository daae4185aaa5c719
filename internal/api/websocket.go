package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/session"
	"go.uber.org/zap"
)

// WebSocket message types for the diagram push protocol
const (
	// Client -> Server messages
	MsgTypePing       = "ping"
	MsgTypeDiagramGet = "diagram:get"

	// Server -> Client messages
	MsgTypeConnected     = "connected"
	MsgTypeDiagramUpdate = "diagram:update"
	MsgTypeError         = "error"
	MsgTypePong          = "pong"
)

// WSMessage is the envelope of every websocket frame
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorPayload is the payload of an error frame
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes diagram updates of a session to connected clients
type WebSocketHandler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
	maxSize  int64
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new websocket handler. maxMessageSize limits client
// frames in bytes; 0 means no limit.
func NewWebSocketHandler(sessions *session.Manager, maxMessageSize int64, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxSize: maxMessageSize,
		logger:  logger,
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) sendDiagram(sessionID string, d models.Diagram) error {
	return c.send(WSMessage{Type: MsgTypeDiagramUpdate, ID: sessionID, Payload: mustJSON(d)})
}

func (c *wsConn) sendError(message, code string) error {
	return c.send(WSMessage{Type: MsgTypeError, Payload: mustJSON(WSErrorPayload{Message: message, Code: code})})
}

// HandleWebSocket upgrades the connection, sends the current diagram and then every
// diagram produced by a later mutation of the session.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	d, err := lookupSession(c, wsh.sessions)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	if wsh.maxSize > 0 {
		ws.SetReadLimit(wsh.maxSize)
	}
	conn := &wsConn{ws: ws}
	log := wsh.logger.With(zap.String("session", d.ID()))
	log.Debug("websocket client connected")

	updates, cancel := d.Subscribe()
	done := make(chan struct{})
	defer func() {
		cancel()
		ws.Close()
		<-done
		log.Debug("websocket client disconnected")
	}()

	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("websocket read failed", zap.Error(err))
				}
				return
			}

			var werr error
			switch msg.Type {
			case MsgTypePing:
				werr = conn.send(WSMessage{Type: MsgTypePong})
			case MsgTypeDiagramGet:
				wsh.sessions.Touch(d.ID())
				werr = conn.sendDiagram(d.ID(), d.Snapshot())
			default:
				werr = conn.sendError("Unknown message type: "+msg.Type, "INVALID_TYPE")
			}
			if werr != nil {
				return
			}
		}
	}()

	if err := conn.send(WSMessage{Type: MsgTypeConnected, ID: d.ID()}); err != nil {
		return nil
	}
	if err := conn.sendDiagram(d.ID(), d.Snapshot()); err != nil {
		return nil
	}

	for {
		select {
		case <-done:
			return nil
		case snap, ok := <-updates:
			if !ok {
				conn.mu.Lock()
				err := ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(time.Second))
				conn.mu.Unlock()
				if err != nil {
					log.Debug("close frame not sent", zap.Error(err))
				}
				return nil
			}
			if err := conn.sendDiagram(d.ID(), snap); err != nil {
				return nil
			}
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
