package stream

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const pingInterval = 30 * time.Second

// HandleConnection relays a job's event stream over a WebSocket connection.
// The connection is a plain subscriber: closing it leaves the job running.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	sub, err := h.Subscribe(jobID)
	if err != nil {
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown job"))
		return
	}
	defer h.Unsubscribe(sub)

	done := make(chan struct{})

	// Writer: event frames plus keep-alive pings.
	go func() {
		defer close(done)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case frame, ok := <-sub.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader: we only care about detecting the peer going away.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on job %s: %v", jobID, err)
			}
			break
		}
	}
	<-done
}
