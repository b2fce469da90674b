package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fyrsmithlabs/firmd/internal/events"
	httpserver "github.com/fyrsmithlabs/firmd/internal/http"
)

// Stream follows the org's record change events until ctx is done, the
// server closes the stream or fn returns an error. kinds narrows the
// record kinds; empty means every kind the identity may read.
func (c *Client) Stream(ctx context.Context, kinds []string, fn func(events.Event) error) error {
	u, err := url.Parse(c.baseURL + "/api/v1/stream")
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if len(kinds) > 0 {
		u.RawQuery = url.Values{"kinds": {strings.Join(kinds, ",")}}.Encode()
	}

	h := http.Header{}
	if c.identity.OrgID != "" {
		h.Set(httpserver.HeaderOrgID, c.identity.OrgID)
		h.Set(httpserver.HeaderUserID, c.identity.UserID)
		h.Set(httpserver.HeaderRoles, c.identity.Roles)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return apiError(resp.StatusCode, body)
		}
		return fmt.Errorf("failed to open stream on %s: %w", c.baseURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("stream interrupted: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
