package server

import (
	"slices"
	"sync"
)

// OnlineEntry records that a user is reachable through one connection.
type OnlineEntry struct {
	UserId       string `json:"userId"`
	ConnectionId string `json:"connectionId"`
}

// PresenceRegistry is the set of online entries. A user with several
// connections has one entry per connection. Entries are only ever removed
// by connection id.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries []OnlineEntry
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make([]OnlineEntry, 0),
	}
}

// Register adds the (userId, connectionId) pair unless it is already
// present and reports whether it was added.
func (p *PresenceRegistry) Register(userId, connectionId string) bool {
	entry := OnlineEntry{UserId: userId, ConnectionId: connectionId}

	p.mu.Lock()
	defer p.mu.Unlock()

	if slices.Contains(p.entries, entry) {
		return false
	}

	p.entries = append(p.entries, entry)
	return true
}

// Unregister removes every entry held by connectionId and returns them.
func (p *PresenceRegistry) Unregister(connectionId string) []OnlineEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []OnlineEntry
	p.entries = slices.DeleteFunc(p.entries, func(e OnlineEntry) bool {
		if e.ConnectionId == connectionId {
			removed = append(removed, e)
			return true
		}
		return false
	})

	return removed
}

func (p *PresenceRegistry) FindByUserId(userId string) []OnlineEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var found []OnlineEntry
	for _, e := range p.entries {
		if e.UserId == userId {
			found = append(found, e)
		}
	}

	return found
}

// ListAll returns a copy of every entry in registration order.
func (p *PresenceRegistry) ListAll() []OnlineEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.entries)
}
