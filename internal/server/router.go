package server

import (
	"github.com/npezzotti/chat-backend/internal/stats"
	"go.uber.org/zap"
)

type sessionLookup interface {
	session(connectionId string) *Client
}

// MessageRouter pushes chat messages to the recipient's live connections and
// acknowledges the sender. Delivery is best effort: nothing is persisted,
// retried or confirmed by the recipient.
type MessageRouter struct {
	presence *PresenceRegistry
	sessions sessionLookup
	log      *zap.SugaredLogger
	stats    stats.StatsProvider
}

func NewMessageRouter(presence *PresenceRegistry, sessions sessionLookup, logger *zap.SugaredLogger, su stats.StatsProvider) *MessageRouter {
	return &MessageRouter{
		presence: presence,
		sessions: sessions,
		log:      logger,
		stats:    su,
	}
}

// Route sends getMessage to every connection of msg.RecipientId and one
// getNotification to sender. It returns the number of connections the
// message was queued on.
func (mr *MessageRouter) Route(sender *Client, msg ChatMessage) int {
	entries := mr.presence.FindByUserId(msg.RecipientId)

	delivered := 0
	if len(entries) > 0 {
		out := GetMessage(msg)
		for _, e := range entries {
			c := mr.sessions.session(e.ConnectionId)
			if c == nil {
				mr.log.Warnw("online entry without session", "user_id", e.UserId, "connection_id", e.ConnectionId)
				continue
			}

			if c.queueMessage(out) {
				delivered++
			}
		}
		mr.stats.Incr(stats.MessagesRouted)
	} else {
		mr.log.Debugw("recipient offline, dropping realtime copy", "recipient_id", msg.RecipientId)
		mr.stats.Incr(stats.MessagesDropped)
	}

	sender.queueMessage(GetNotification(msg.SenderId, Now()))

	return delivered
}
