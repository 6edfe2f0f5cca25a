package stream

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SessionExists reports whether a viewer may follow sessionID.
type SessionExists func(ctx context.Context, sessionID string) bool

// RegisterRoutes mounts the public viewer socket and the owner's event socket.
// Viewer sockets only ever attach to session keys; owner keys need the auth middleware.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler, exists SessionExists) {
	r.Get("/ws/:sessionID", func(c *fiber.Ctx) error {
		id := c.Params("sessionID")
		if id == "" || strings.HasPrefix(id, ownerPrefix) {
			return fiber.NewError(fiber.StatusNotFound, "unknown session")
		}
		if exists != nil && !exists(c.Context(), id) {
			return fiber.NewError(fiber.StatusNotFound, "unknown session")
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		serve(hub, c.Params("sessionID"), c)
	}))

	r.Get("/events", authMiddleware, websocket.New(func(c *websocket.Conn) {
		ownerID, _ := c.Locals("user_id").(string)
		if ownerID == "" {
			return
		}
		serve(hub, OwnerKey(ownerID), c)
	}))
}

func serve(hub *Hub, key string, c *websocket.Conn) {
	client := hub.Register(key)

	done := make(chan struct{})
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		close(done)
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	hub.Unregister(client)
	<-done
}
