package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// wsChannel adapts a gorilla connection to Channel. Data frames are written
// only from the client's writer goroutine; control frames may come from any
// goroutine.
type wsChannel struct {
	conn *websocket.Conn
	once sync.Once
}

func (w *wsChannel) WriteJSON(v interface{}) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (w *wsChannel) Close(code int, reason string) error {
	var err error
	w.once.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = w.conn.Close()
	})
	return err
}

// PushServer accepts push-channel connections.
type PushServer struct {
	registry     *Registry
	identity     Identity
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
}

func NewPushServer(registry *Registry, identity Identity, pingInterval, pongTimeout time.Duration) *PushServer {
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	if pongTimeout <= pingInterval {
		pongTimeout = pingInterval + 5*time.Second
	}
	return &PushServer{
		registry: registry,
		identity: identity,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}
}

// HandleWebSocket upgrades the request, authenticates the token query
// parameter and registers the connection. Authentication failures close the
// socket with a distinguishing code.
func (p *PushServer) HandleWebSocket(ctx *gin.Context) {
	conn, err := p.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	ch := &wsChannel{conn: conn}

	userID, err := p.identity.ParseToken(ctx.Query("token"))
	switch err {
	case nil:
	case ErrNoToken:
		_ = ch.Close(CloseNoToken, "no token supplied")
		return
	case ErrNoSubject:
		_ = ch.Close(CloseNoSubject, "no user id in token")
		return
	default:
		_ = ch.Close(CloseInvalidToken, "invalid token")
		return
	}

	client := p.registry.Register(userID, ch)
	go p.heartbeat(client, conn)
	p.readLoop(client, conn)
}

// readLoop consumes inbound frames so control frames are processed, and
// unregisters the client on close or error.
func (p *PushServer) readLoop(c *Client, conn *websocket.Conn) {
	defer p.registry.Unregister(c)

	_ = conn.SetReadDeadline(time.Now().Add(p.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(p.pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithField("user_id", c.UserID).WithError(err).Debug("push connection closed")
			}
			return
		}
		// The channel is push-only; client frames only refresh liveness.
		_ = conn.SetReadDeadline(time.Now().Add(p.pongTimeout))
	}
}

func (p *PushServer) heartbeat(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.WithField("user_id", c.UserID).WithError(err).Debug("ping failed")
				p.registry.Unregister(c)
				return
			}
		}
	}
}
