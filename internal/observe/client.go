package observe

import (
	"bytes"
	"io"
	"sync/atomic"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/websocket"
)

// Client is one connected debug/dashboard websocket. Its read side only
// understands one control message, toggling brotli compression of
// everything subsequently sent to it; every other inbound message is
// ignored, this bridge is observe-only.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	compressed atomic.Bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(message) >= 2 && EventType(message[0]) == ControlSetCompression {
			c.compressed.Store(message[1] == 1)
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if c.compressed.Load() {
			compressed, err := compress(msg)
			if err != nil {
				return
			}
			msg = compressed
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}
