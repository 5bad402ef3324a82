package server

import (
	"testing"
	"time"

	"github.com/npezzotti/chat-backend/internal/config"
	"github.com/npezzotti/chat-backend/internal/stats"
	"github.com/npezzotti/chat-backend/internal/testutil"
	"github.com/stretchr/testify/mock"
)

func newTestStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	su.On("Set", mock.Anything, mock.Anything).Maybe()
	return su
}

// newTestChatServer creates a new ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, su *stats.MockStatsUpdater) *ChatServer {
	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, su, config.RateLimitConfig{Burst: 100, RefillInterval: time.Second})
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// newTestClient returns a registered client without a network connection.
func newTestClient(t *testing.T, cs *ChatServer, id string) *Client {
	c := &Client{
		id:         id,
		chatServer: cs,
		log:        testutil.TestLogger(t),
		send:       make(chan *ServerMessage, 16),
		limiter:    cs.newLimiter(),
		stop:       make(chan struct{}),
	}
	cs.addClient(c)
	return c
}

// drain empties c's send queue and returns what was queued.
func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func eventsNamed(msgs []*ServerMessage, event string) []*ServerMessage {
	var out []*ServerMessage
	for _, m := range msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}
