// Package onebot implements the chat gateway client: a websocket connection
// to a OneBot v11 endpoint that surfaces inbound message events and sends
// replies as API action frames.
package onebot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/util"
)

// Constants for gateway client configuration
const (
	// DefaultReconnectDelay is the pause before re-dialing a dropped
	// connection.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultWriteTimeout bounds one outbound frame write.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultEventBuffer is the inbound event channel capacity.
	DefaultEventBuffer = 64
	// echoLength is the hex length of action frame correlation ids.
	echoLength = 16
)

// Opts holds configuration options for the gateway client.
type Opts struct {
	URL            string        // websocket endpoint, e.g. ws://127.0.0.1:15000
	AccessToken    string        // optional bearer token
	ReconnectDelay time.Duration // pause between reconnect attempts
}

// Option defines a configuration option for the gateway client.
type Option func(*Opts)

// WithURL sets the websocket endpoint.
func WithURL(url string) Option {
	return func(o *Opts) {
		o.URL = url
	}
}

// WithAccessToken sets the bearer token sent on the connection handshake.
func WithAccessToken(token string) Option {
	return func(o *Opts) {
		o.AccessToken = token
	}
}

// WithReconnectDelay overrides the reconnect pause.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.ReconnectDelay = d
	}
}

// Client is the gateway connection. It implements flow.Notifier for
// outbound messages and feeds inbound events to the channel returned by
// Events.
type Client struct {
	cfg    Opts
	events chan models.Event

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a gateway client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{ReconnectDelay: DefaultReconnectDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("gateway URL not set")
	}
	slog.Debug("Creating gateway Client", "url", cfg.URL, "token_set", cfg.AccessToken != "")
	return &Client{
		cfg:    cfg,
		events: make(chan models.Event, DefaultEventBuffer),
	}, nil
}

// Events returns the inbound event channel. It is closed when Run returns.
func (c *Client) Events() <-chan models.Event {
	return c.events
}

// Run connects to the gateway and pumps inbound frames until ctx is
// cancelled, re-dialing after connection loss.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)
	for {
		if err := c.connectAndRead(ctx); err != nil {
			slog.Error("Gateway connection lost", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("Gateway client stopping", "reason", ctx.Err())
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
		slog.Info("Gateway reconnecting", "url", c.cfg.URL)
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	slog.Info("Gateway connected", "url", c.cfg.URL)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	// Close the socket when ctx ends so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read gateway frame: %w", err)
		}

		ev, ok, err := decodeEvent(data)
		if err != nil {
			slog.Debug("Gateway dropped undecodable frame", "error", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

// Send delivers msg to dest as a gateway API action frame.
func (c *Client) Send(ctx context.Context, dest models.Destination, msg models.Message) error {
	frame := actionFrame{Echo: util.GenerateRandomID("echo_", echoLength)}
	switch dest.Kind {
	case models.MessageKindGroup:
		frame.Action = "send_group_msg"
		frame.Params = groupMessageParams{GroupID: dest.ID, Message: encodeMessage(msg)}
	case models.MessageKindPrivate:
		frame.Action = "send_private_msg"
		frame.Params = privateMessageParams{UserID: dest.ID, Message: encodeMessage(msg)}
	default:
		return fmt.Errorf("unknown destination kind %q", dest.Kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", frame.Action, err)
	}
	slog.Debug("Gateway message sent", "action", frame.Action, "destID", dest.ID, "echo", frame.Echo)
	return nil
}
