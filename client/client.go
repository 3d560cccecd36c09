// Package client is the Go-side protocol client: it speaks the JSON frame
// protocol over a websocket and hides the envelope plumbing from callers.
// The interactive tester and the end-to-end scenarios are built on it.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livehub/transport"
)

type Client struct {
	log  *slog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex

	frames chan transport.Frame
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// URL builds the websocket endpoint for a host, port and session token.
func URL(host string, port int, token string) string {
	return fmt.Sprintf("ws://%s:%d/ws?token=%s", host, port, token)
}

// Dial connects and authenticates in one step; the server answers an invalid
// token with a close frame before anything else, which surfaces here as an
// error on the first read.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		log:    log,
		conn:   conn,
		frames: make(chan transport.Frame, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop decodes inbound frames and answers server heartbeats without
// involving the caller. Everything else is handed over through the frame
// channel.
func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.closeErr = err
			return
		}
		frame, err := transport.DecodeFrame(raw)
		if err != nil {
			c.log.Warn("Dropping undecodable frame", "error", err)
			continue
		}
		if frame.Type == transport.TypePing {
			_ = c.send(transport.TypePong, transport.PongPayload{EchoID: frame.ID})
			continue
		}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

// Next returns the next non-heartbeat frame from the server.
func (c *Client) Next(ctx context.Context) (transport.Frame, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			if c.closeErr != nil {
				return transport.Frame{}, c.closeErr
			}
			return transport.Frame{}, fmt.Errorf("connection closed")
		}
		return frame, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

// NextOfType discards frames until one of the wanted type arrives. Handy in
// scenarios where unread or presence frames interleave with the answer.
func (c *Client) NextOfType(ctx context.Context, frameType string) (transport.Frame, error) {
	for {
		frame, err := c.Next(ctx)
		if err != nil {
			return transport.Frame{}, err
		}
		if frame.Type == frameType {
			return frame, nil
		}
		if frame.Type == transport.TypeError {
			return frame, fmt.Errorf("server answered with an error frame")
		}
	}
}

func (c *Client) SendChat(roomID, body string) error {
	return c.send(transport.TypeChat, transport.ChatPayload{RoomID: roomID, Body: body})
}

func (c *Client) Sync(roomID string, limit int) error {
	return c.send(transport.TypeSync, transport.SyncPayload{RoomID: roomID, Limit: limit})
}

func (c *Client) MarkRead(roomID string, at time.Time) error {
	return c.send(transport.TypeRead, transport.ReadPayload{RoomID: roomID, Timestamp: at.UnixMilli()})
}

func (c *Client) Search(roomID, query string, limit int) error {
	return c.send(transport.TypeSearch, transport.SearchPayload{RoomID: roomID, Query: query, Limit: limit})
}

func (c *Client) Ping() error {
	return c.send(transport.TypePing, struct{}{})
}

func (c *Client) send(frameType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(transport.Frame{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Version:   transport.FrameVersion,
		Type:      frameType,
		Payload:   raw,
	})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a normal close frame and tears the socket down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
