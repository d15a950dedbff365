package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/events"
	"go.uber.org/zap"
)

// WSHub forwards bus events to the websocket connections of their recipients.
type WSHub struct {
	verifier    auth.Verifier
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
}

func NewWSHub(verifier auth.Verifier, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		verifier:    verifier,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*websocket.Conn),
	}
}

// Start subscribes to every domain channel. Subscriptions end with ctx.
func (h *WSHub) Start(ctx context.Context) error {
	for _, ch := range []string{events.ChannelEscrow, events.ChannelLoan, events.ChannelAsset} {
		if err := h.subscriber.Subscribe(ctx, ch, h.deliver); err != nil {
			return err
		}
	}
	return nil
}

func (h *WSHub) deliver(event events.Event) {
	for _, userID := range event.Recipients {
		h.SendToUser(userID, event)
	}
}

func (h *WSHub) SendToUser(userID uuid.UUID, event events.Event) {
	if !event.IsFor(userID) {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[userID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("ws write failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}

// Connected reports the number of open connections for a user.
func (h *WSHub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"success":false,"error":"unauthenticated","message":"missing token"}`))
		conn.Close()
		return
	}

	principal, err := h.verifier.Verify(context.Background(), tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"success":false,"error":"unauthenticated","message":"invalid token"}`))
		conn.Close()
		return
	}

	userID := principal.ID
	h.register(userID, conn)
	defer func() {
		h.unregister(userID, conn)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *WSHub) register(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	h.connections[userID] = append(h.connections[userID], conn)
	h.mu.Unlock()
}

func (h *WSHub) unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.connections[userID]
	for i, c := range conns {
		if c == conn {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
	}
}
