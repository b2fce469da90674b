package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/events"
	httpserver "github.com/fyrsmithlabs/firmd/internal/http"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamServer sends evs then closes with code. A zero code keeps the
// connection open until the client leaves.
func streamServer(t *testing.T, evs []events.Event, code int) *httptest.Server {
	t.Helper()
	var upgrader websocket.Upgrader
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(httpserver.HeaderOrgID) == "" {
			writeJSON(w, http.StatusUnauthorized, httpserver.ErrorResponse{
				Error: httpserver.ErrorBody{Code: "unauthenticated", Message: "missing identity"},
			})
			return
		}
		assert.Equal(t, "/api/v1/stream", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for _, ev := range evs {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		if code != 0 {
			msg := websocket.FormatCloseMessage(code, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestClient_Stream(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	evs := []events.Event{
		events.New("acme", "case", events.Created, "c1", now),
		events.New("acme", "task", events.Updated, "t1", now),
	}

	t.Run("until going away", func(t *testing.T) {
		srv := streamServer(t, evs, websocket.CloseGoingAway)
		defer srv.Close()

		var got []string
		err := New(srv.URL, partner).Stream(context.Background(), nil, func(ev events.Event) error {
			got = append(got, ev.RecordID)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "t1"}, got)
	})

	t.Run("kinds query", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "case,task", r.URL.Query().Get("kinds"))
			writeJSON(w, http.StatusForbidden, httpserver.ErrorResponse{
				Error: httpserver.ErrorBody{Code: "forbidden", Message: "nope"},
			})
		}))
		defer srv.Close()

		err := New(srv.URL, partner).Stream(context.Background(), []string{"case", "task"}, func(events.Event) error { return nil })
		assert.True(t, IsStatus(err, http.StatusForbidden), "got %v", err)
	})

	t.Run("handshake rejected", func(t *testing.T) {
		srv := streamServer(t, nil, 0)
		defer srv.Close()

		err := New(srv.URL, Identity{}).Stream(context.Background(), nil, func(events.Event) error { return nil })
		var ae *APIError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, http.StatusUnauthorized, ae.Status)
		assert.Equal(t, "unauthenticated", ae.Code)
	})

	t.Run("callback error stops", func(t *testing.T) {
		srv := streamServer(t, evs, 0)
		defer srv.Close()

		stop := errors.New("stop")
		err := New(srv.URL, partner).Stream(context.Background(), nil, func(events.Event) error { return stop })
		require.ErrorIs(t, err, stop)
	})

	t.Run("context cancel", func(t *testing.T) {
		srv := streamServer(t, evs[:1], 0)
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		err := New(srv.URL, partner).Stream(ctx, nil, func(events.Event) error {
			cancel()
			return nil
		})
		require.NoError(t, err)
	})
}
