package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const wsWriteTimeout = 10 * time.Second

// handleWS upgrades the connection and streams hub events to the client.
// A pubkey query parameter scopes the stream to events addressed to that
// participant in addition to broadcasts.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	sub, unregister := s.hub.Subscribe(r.URL.Query().Get("pubkey"))
	defer unregister()

	ctx := r.Context()

	// Drain reads so close frames and pings are processed; unregister when
	// the peer goes away.
	go func() {
		defer unregister()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
