// Package events announces record changes over NATS so that every firmd
// instance can drop analytics cached for the affected org.
//
// Subjects follow the pattern:
//
//	{prefix}.{org_id}.{kind}.{action}
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/config"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// ErrNotConnected is returned when publishing on a closed connection.
var ErrNotConnected = errors.New("events: not connected")

// Action is what happened to a record.
type Action string

const (
	Created Action = "created"
	Updated Action = "updated"
	Deleted Action = "deleted"
)

// Event describes one committed record change.
type Event struct {
	ID       string    `json:"id"`
	OrgID    string    `json:"org_id"`
	Kind     string    `json:"kind"`
	Action   Action    `json:"action"`
	RecordID string    `json:"record_id"`
	At       time.Time `json:"at"`
	// Source identifies the publishing instance.
	Source string `json:"source,omitempty"`
}

// New builds an event with a fresh id.
func New(orgID, kind string, action Action, recordID string, at time.Time) Event {
	return Event{
		ID:       uuid.NewString(),
		OrgID:    orgID,
		Kind:     kind,
		Action:   action,
		RecordID: recordID,
		At:       at,
	}
}

// Publisher announces record changes.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Subject returns the subject an event is published on.
func Subject(prefix string, ev Event) string {
	return strings.Join([]string{prefix, token(ev.OrgID), token(ev.Kind), token(string(ev.Action))}, ".")
}

// token makes s safe for use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Connect dials NATS with the given token, if any.
func Connect(url string, tok config.Secret, name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if tok.IsSet() {
		opts = append(opts, nats.Token(tok.Value()))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", config.RedactURL(url), err)
	}
	return nc, nil
}

// NATSPublisher publishes events as JSON.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	source string
}

// NewNATSPublisher creates a publisher on nc. source tags every event so
// the instance can recognise its own events.
func NewNATSPublisher(nc *nats.Conn, prefix, source string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, source: source}
}

// Publish sends ev. The context is only checked before sending; core NATS
// publishes do not block on the server.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	if ev.Source == "" {
		ev.Source = p.source
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(Subject(p.prefix, ev), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Action, err)
	}
	return nil
}

// Handler receives decoded events.
type Handler func(ctx context.Context, ev Event)

// Subscribe delivers every event under prefix to h until ctx is cancelled.
// Messages that do not decode are dropped.
func Subscribe(ctx context.Context, nc *nats.Conn, prefix string, h Handler) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(prefix+".>", func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		h(ctx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", prefix, err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}
