package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/alerts"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AlertFeed streams dispatched alerts to websocket clients as JSON frames.
// Each connection gets its own hub subscription; slow clients drop frames
// rather than backing up dispatch.
type AlertFeed struct {
	hub *alerts.Hub
}

// NewAlertFeed creates a feed over the given hub.
func NewAlertFeed(hub *alerts.Hub) *AlertFeed {
	return &AlertFeed{hub: hub}
}

// Serve upgrades the request and streams alerts until the client goes away.
func (f *AlertFeed) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub, cancel := f.hub.Subscribe()
	defer cancel()

	// Reader goroutine only to detect disconnects; the feed is one-way.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case alert, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(alert); err != nil {
				log.Debug().Err(err).Msg("websocket write failed, dropping client")
				return
			}
		}
	}
}
