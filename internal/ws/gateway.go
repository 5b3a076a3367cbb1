// Package ws is the per-connection call transport: one authenticated
// WebSocket per user carrying start/end requests inbound and
// started/progress/ended/error events outbound. The gateway owns the
// connection plumbing only; metering semantics live in the engine.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ahmad-codecoy-team/self-talk-backend/internal/metering"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/model"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/repository"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/service"
	"github.com/ahmad-codecoy-team/self-talk-backend/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// Inbound frames are tiny control messages; anything bigger is abuse.
	maxMessageSize = 512
)

// Message is the JSON envelope for both directions on the call socket.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// UserStore is the slice of UserRepo the gateway needs.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Gateway upgrades authenticated connections and routes their messages
// into the metering engine.
type Gateway struct {
	secret   string
	users    UserStore
	subs     *service.SubscriptionService
	engine   *metering.Engine
	upgrader websocket.Upgrader
}

func NewGateway(secret, clientURL string, users UserStore, subs *service.SubscriptionService, engine *metering.Engine) *Gateway {
	return &Gateway{
		secret: secret,
		users:  users,
		subs:   subs,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Mobile clients send no Origin; the web client must match.
				origin := r.Header.Get("Origin")
				return origin == "" || clientURL == "" || origin == clientURL
			},
		},
	}
}

// Handle is the echo handler for GET /v1/call/ws. The access token comes
// from the "token" query parameter (browsers cannot set headers on
// WebSocket dials) or the Authorization header; a missing or invalid
// credential rejects the connection before any session logic runs.
func (g *Gateway) Handle(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			raw = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	userID, _, err := utils.ParseAccessToken(g.secret, raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}

	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}

	cl := &client{
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
	}
	go cl.writePump()
	g.readLoop(cl)
	return nil
}

// readLoop consumes inbound messages until the connection dies. A read
// error is an implicit "end": the engine stops and reconciles the session
// with server-side-only cleanup, since there is no peer left to notify.
func (g *Gateway) readLoop(cl *client) {
	defer func() {
		g.engine.Stop(cl.userID)
		close(cl.send)
		_ = cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: user %d connection error: %v", cl.userID, err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			cl.Emit(metering.EventError, map[string]string{"message": "invalid message"})
			continue
		}
		switch msg.Type {
		case "start":
			g.handleStart(cl)
		case "end":
			// Blocks until the session reconciled and emitted "ended".
			// An "end" with no live session still answers "ended" so the
			// client's call UI always resolves.
			if !g.engine.Stop(cl.userID) {
				cl.Emit(metering.EventEnded, map[string]string{"reason": metering.ReasonUserEnded})
			}
		default:
			cl.Emit(metering.EventError, map[string]string{"message": "unknown message type"})
		}
	}
}

func (g *Gateway) handleStart(cl *client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := g.users.GetByID(ctx, cl.userID)
	if err != nil {
		cl.Emit(metering.EventError, map[string]string{"message": "could not start call"})
		return
	}
	if u.IsSuspended {
		cl.Emit(metering.EventError, map[string]string{"message": "account suspended"})
		return
	}

	// Lapsed cycles downgrade to Free before the balance check, so a user
	// with an expired Premium meters against the refreshed Free grant.
	if _, _, err := g.subs.CheckExpiry(ctx, cl.userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		cl.Emit(metering.EventError, map[string]string{"message": "could not start call"})
		return
	}

	seconds, err := g.engine.Start(ctx, cl.userID, cl)
	if err != nil {
		switch {
		case errors.Is(err, metering.ErrNoSubscription), errors.Is(err, metering.ErrNoSeconds):
			cl.Emit(metering.EventError, map[string]string{"message": err.Error()})
		default:
			log.Printf("ws: start failed for user %d: %v", cl.userID, err)
			cl.Emit(metering.EventError, map[string]string{"message": "could not start call"})
		}
		return
	}
	cl.Emit(metering.EventStarted, map[string]int64{"seconds": seconds})
}

// client is one live socket. Emit may be called from the engine's tick
// goroutine and the read loop concurrently; the send channel serializes
// writes onto the single write pump.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID uint64
}

// Emit queues an event for delivery. A full buffer (or a dead connection
// draining nothing) drops the event rather than blocking the engine.
func (cl *client) Emit(event string, data any) {
	defer func() {
		// The send channel closes when the read loop exits; an engine
		// goroutine finishing a session after disconnect must not panic.
		_ = recover()
	}()
	b, err := json.Marshal(Message{Type: event, Data: data})
	if err != nil {
		return
	}
	select {
	case cl.send <- b:
	default:
		log.Printf("ws: dropping %s event for user %d (slow consumer)", event, cl.userID)
	}
}

func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
