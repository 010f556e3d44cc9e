package notice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-school/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// ServeHTTP streams the session user's notices as JSON text frames until
// the client disconnects. It must run behind session.Middleware.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.From(r.Context())
	if !ok || !sess.Valid() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// The server's write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", sess.UserID, "error", err)
		return
	}
	defer conn.CloseNow()

	notices, unsubscribe := h.Subscribe(sess.UserID)
	defer unsubscribe()

	slog.Info("notice stream opened", "user_id", sess.UserID, "school_id", sess.SchoolID)

	// Nothing is expected from the client; CloseRead handles control frames.
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("notice stream closed", "user_id", sess.UserID)
			return
		case <-ticker.C:
			if err := ping(ctx, conn); err != nil {
				slog.Debug("notice stream ping failed", "user_id", sess.UserID, "error", err)
				return
			}
		case n, ok := <-notices:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "")
				return
			}
			if err := write(ctx, conn, n); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Warn("notice write failed", "user_id", sess.UserID, "error", err)
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, n Notice) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, n)
}

func ping(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Ping(ctx)
}
