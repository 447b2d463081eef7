package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticketing-system/internal/availability"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// Feed hands out availability subscriptions.
type Feed interface {
	Subscribe(ctx context.Context) *availability.Subscription
	Unsubscribe(sub *availability.Subscription)
}

// AvailabilityHandler streams the available ticket count over WebSocket.
type AvailabilityHandler struct {
	feed     Feed
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewAvailabilityHandler returns an AvailabilityHandler.  Cross-origin
// upgrades are accepted; the stream carries only public counts.
func NewAvailabilityHandler(feed Feed, log zerolog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		feed: feed,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type availabilityMessage struct {
	AvailableTickets int `json:"availableTickets"`
}

// Stream handles GET /v1/ws/availability.  Each message is
// {"availableTickets": n}; the first one carries the count at connect
// time.
func (h *AvailabilityHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	sub := h.feed.Subscribe(ctx)
	defer h.feed.Unsubscribe(sub)
	h.log.Debug().Str("observer", sub.ID).Msg("observer connected")

	// Reads only serve control frames; any read error ends the stream.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("observer", sub.ID).Msg("observer disconnected")
			return nil
		case n, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return nil
			}
			if err := conn.WriteJSON(availabilityMessage{AvailableTickets: n}); err != nil {
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
