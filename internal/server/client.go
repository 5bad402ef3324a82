package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client is one live websocket connection. userId is the identity most
// recently announced on it and is only read or written by the ChatServer
// event loop.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *zap.SugaredLogger
	userId     string
	send       chan *ServerMessage
	limiter    *rate.Limiter
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *zap.SugaredLogger) (*Client, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}

	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l.With("connection_id", id),
		send:       make(chan *ServerMessage, sendBufferSize),
		limiter:    cs.newLimiter(),
		stop:       make(chan struct{}),
	}, nil
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Errorw("failed to serialize message", "event", msg.Event, "error", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait),
			)
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Infow("ws: read", "error", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.log.Warn("rate limit exceeded, dropping event")
			continue
		}

		msg, err := parseClientMessage(raw)
		if err != nil {
			c.log.Debugw("dropping event", "error", err)
			continue
		}

		msg.client = c
		if !c.chatServer.dispatch(msg) {
			return
		}
	}
}

// queueMessage hands msg to the write pump without blocking. A full queue
// drops the message.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warnw("failed to send message to client, channel is full", "event", msg.Event)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Infow("write message", "error", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup queues the disconnect behind any events this connection already
// dispatched, then stops the write pump.
func (c *Client) cleanup() {
	c.chatServer.dispatch(&ClientMessage{
		Event:  eventDisconnect,
		client: c,
	})
	c.stopClient()
}
