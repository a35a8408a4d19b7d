package realtime

import (
	"sync"

	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

// Client is one connected feed session.
// Send is never closed; done signals the session goroutines to stop.
type Client struct {
	SessionID string
	Remote    string
	Send      chan feedv1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID, remote string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueue
	}
	return &Client{
		SessionID: sessionID,
		Remote:    remote,
		Send:      make(chan feedv1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close is idempotent.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() { close(c.done) })
}
