package server

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/chat-backend/internal/config"
	"github.com/npezzotti/chat-backend/internal/stats"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const eventQueueSize = 256

type stopReq struct {
	done chan struct{}
}

// ChatServer is the realtime gateway. Run is its only event loop: it accepts
// registered connections, applies announce, send and disconnect events one at
// a time in the order they were dispatched, and broadcasts presence.
type ChatServer struct {
	log          *zap.SugaredLogger
	stats        stats.StatsProvider
	presence     *PresenceRegistry
	router       *MessageRouter
	rateLimit    config.RateLimitConfig
	clients      map[string]*Client
	clientsLock  sync.RWMutex
	registerChan chan *Client
	eventChan    chan *ClientMessage
	stop         chan stopReq
	done         chan struct{}
}

func NewChatServer(logger *zap.SugaredLogger, su stats.StatsProvider, rl config.RateLimitConfig) (*ChatServer, error) {
	for _, metric := range []string{
		stats.NumConnections,
		stats.NumOnlineEntries,
		stats.MessagesRouted,
		stats.MessagesDropped,
		stats.PresenceBroadcasts,
	} {
		su.RegisterMetric(metric)
	}

	cs := &ChatServer{
		log:          logger,
		stats:        su,
		presence:     NewPresenceRegistry(),
		rateLimit:    rl,
		clients:      make(map[string]*Client),
		registerChan: make(chan *Client),
		eventChan:    make(chan *ClientMessage, eventQueueSize),
		stop:         make(chan stopReq),
		done:         make(chan struct{}),
	}
	cs.router = NewMessageRouter(cs.presence, cs, logger.Named("router"), su)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.addClient(c)
			cs.stats.Incr(stats.NumConnections)
			cs.log.Infow("connection opened", "connection_id", c.id)
		case msg := <-cs.eventChan:
			cs.handleEvent(msg)
		case req := <-cs.stop:
			cs.log.Info("stopping connections")
			cs.clientsLock.RLock()
			for _, c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// RegisterClient hands a new connection to the event loop. It returns false
// once the server has stopped.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

// dispatch queues msg for the event loop, blocking while the queue is full
// so that a connection's events keep their order. It returns false once the
// server has stopped.
func (cs *ChatServer) dispatch(msg *ClientMessage) bool {
	select {
	case cs.eventChan <- msg:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) handleEvent(msg *ClientMessage) {
	c := msg.client
	if cs.session(c.id) == nil {
		cs.log.Debugw("event from closed connection", "connection_id", c.id, "event", msg.Event)
		return
	}

	switch msg.Event {
	case EventAddNewUser:
		p, err := msg.addNewUser()
		if err != nil {
			c.log.Debugw("dropping event", "event", msg.Event, "error", err)
			return
		}
		cs.handleAddNewUser(c, p.UserId)
	case EventSendMessage:
		m, err := msg.chatMessage()
		if err != nil {
			c.log.Debugw("dropping event", "event", msg.Event, "error", err)
			return
		}
		cs.router.Route(c, m)
	case eventDisconnect:
		cs.handleDisconnect(c)
	default:
		c.log.Debugw("dropping unknown event", "event", msg.Event)
	}
}

// handleAddNewUser marks the connection as identified. Announcing a second
// identity on the same connection adds an entry and keeps the first.
func (cs *ChatServer) handleAddNewUser(c *Client, userId string) {
	c.userId = userId
	if cs.presence.Register(userId, c.id) {
		cs.log.Infow("user online", "user_id", userId, "connection_id", c.id)
	}

	cs.broadcastPresence()
}

func (cs *ChatServer) handleDisconnect(c *Client) {
	cs.removeClient(c)
	cs.stats.Decr(stats.NumConnections)

	removed := cs.presence.Unregister(c.id)
	cs.log.Infow("connection closed", "connection_id", c.id, "user_id", c.userId, "entries_removed", len(removed))

	cs.broadcastPresence()
}

// broadcastPresence sends the full registry snapshot to every connection,
// identified or not.
func (cs *ChatServer) broadcastPresence() {
	entries := cs.presence.ListAll()
	msg := OnlineUsers(entries)

	cs.clientsLock.RLock()
	for _, c := range cs.clients {
		c.queueMessage(msg)
	}
	cs.clientsLock.RUnlock()

	cs.stats.Set(stats.NumOnlineEntries, int64(len(entries)))
	cs.stats.Incr(stats.PresenceBroadcasts)
}

// OnlineUsers returns the current presence snapshot.
func (cs *ChatServer) OnlineUsers() []OnlineEntry {
	return cs.presence.ListAll()
}

func (cs *ChatServer) session(connectionId string) *Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	return cs.clients[connectionId]
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c.id] = c
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c.id)
}

func (cs *ChatServer) newLimiter() *rate.Limiter {
	burst := cs.rateLimit.Burst
	interval := cs.rateLimit.RefillInterval
	if burst <= 0 || interval <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}

// Shutdown stops the event loop and every connection's write pump.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
