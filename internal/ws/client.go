package ws

import (
	"sync"

	"golang.org/x/net/websocket"
)

// maxChannelsPerClient bounds how many channels one connection may follow.
const maxChannelsPerClient = 64

type Client struct {
	conn   *websocket.Conn
	out    chan []byte
	handle string
	// admin may follow any party channel
	admin bool

	sendMu sync.RWMutex
	closed bool

	mu       sync.RWMutex
	channels map[string]struct{}
}

func NewClient(conn *websocket.Conn, handle string) *Client {
	return &Client{
		conn:     conn,
		out:      make(chan []byte, 64),
		handle:   handle,
		channels: map[string]struct{}{},
	}
}

// send drops slow consumers by closing their connection.
func (c *Client) send(payload []byte) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.out <- payload:
	default:
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

func (c *Client) closeOut() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = struct{}{}
}

func (c *Client) removeChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

func (c *Client) channelCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}

func (c *Client) listChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
