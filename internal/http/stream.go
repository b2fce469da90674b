package http

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/records"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	streamPath = "/stream"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleStream upgrades to a websocket and forwards the org's record
// change events as JSON text frames. Only kinds the principal may read
// are sent; ?kinds=case,task narrows them further. Clients send nothing
// but pongs and the close handshake.
func (s *Server) handleStream(c echo.Context) error {
	p := principal(c)
	want := parseKinds(c.QueryParam("kinds"))

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Debug(c.Request().Context(), "websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	evs, cancel := s.deps.Hub.Subscribe(p.OrgID, 0)
	defer cancel()

	s.logger.Debug(ctx, "stream opened", zap.String("org_id", p.OrgID), zap.String("user_id", p.UserID))
	defer s.logger.Debug(ctx, "stream closed", zap.String("org_id", p.OrgID), zap.String("user_id", p.UserID))

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-evs:
			if !ok {
				closeStream(conn, websocket.CloseGoingAway, "server shutting down")
				return nil
			}
			kind := records.Kind(ev.Kind)
			if !s.deps.Records.CanRead(p, kind) || (want != nil && !want[kind]) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug(ctx, "stream write failed", zap.Error(err))
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		case <-ctx.Done():
			closeStream(conn, websocket.CloseGoingAway, "")
			return nil
		}
	}
}

// readPump drains the connection so pongs and close frames are handled.
// done is closed once the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// parseKinds returns nil when raw is empty, meaning every kind.
func parseKinds(raw string) map[records.Kind]bool {
	if raw == "" {
		return nil
	}
	out := make(map[records.Kind]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			out[records.Kind(k)] = true
		}
	}
	return out
}
