package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"livehub/internal/core/domain"

	"github.com/google/uuid"
)

// ConnectionRegistry is the single source of truth for live connections.
// Presence is always derived from it, never cached elsewhere.
type ConnectionRegistry struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionID]*Client

	newID func() domain.ConnectionID
	now   func() time.Time
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		clients: make(map[domain.ConnectionID]*Client),
		newID: func() domain.ConnectionID {
			return domain.ConnectionID(uuid.NewString())
		},
		now: time.Now,
	}
}

// Register assigns the client a fresh id and adds it. A colliding id means
// the registry can no longer be trusted, so it panics.
func (r *ConnectionRegistry) Register(c *Client) domain.ConnectionID {
	id := r.newID()
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; exists {
		panic(fmt.Errorf("%w: duplicate connection id %s", domain.ErrRegistryCorrupted, id))
	}

	c.ID = id
	c.ConnectedAt = now
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()

	r.clients[id] = c
	return id
}

// SetIdentity attaches identity to a registered connection. Identity is set
// at most once per connection.
func (r *ConnectionRegistry) SetIdentity(id domain.ConnectionID, identity domain.Identity) error {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownConnection, id)
	}
	return c.setIdentity(identity)
}

// Unregister removes the connection. Removing an unknown id is a no-op.
func (r *ConnectionRegistry) Unregister(id domain.ConnectionID) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	return c, ok
}

func (r *ConnectionRegistry) Get(id domain.ConnectionID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Touch refreshes the last activity of a connection.
func (r *ConnectionRegistry) Touch(id domain.ConnectionID) {
	if c, ok := r.Get(id); ok {
		c.Touch()
	}
}

// ForEachExcept calls fn for every registered client but except. It iterates
// a copy taken under the read lock, so fn may unregister clients.
func (r *ConnectionRegistry) ForEachExcept(except domain.ConnectionID, fn func(*Client)) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		if except != "" && id == except {
			continue
		}
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		fn(c)
	}
}

// Matching returns the clients whose fingerprint or ip matches.
func (r *ConnectionRegistry) Matching(fingerprint, ip string) []*Client {
	if fingerprint == "" && ip == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Client
	for _, c := range r.clients {
		if c.matches(fingerprint, ip) {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot derives presence. Connections sharing an identity key collapse to
// one entry that keeps the earliest connect time and the latest activity.
// Unidentified connections count but are not listed.
func (r *ConnectionRegistry) Snapshot() domain.PresenceSnapshot {
	r.mu.RLock()
	count := len(r.clients)
	byKey := make(map[string]domain.PresenceEntry, count)
	for _, c := range r.clients {
		entry, ok := c.presenceEntry()
		if !ok {
			continue
		}
		key := domain.Identity{Username: entry.Username, Fingerprint: entry.Fingerprint}.Key()
		existing, seen := byKey[key]
		if !seen {
			byKey[key] = entry
			continue
		}
		if entry.ConnectTime.Before(existing.ConnectTime) {
			entry.LastActivity = latest(entry.LastActivity, existing.LastActivity)
			byKey[key] = entry
		} else {
			existing.LastActivity = latest(entry.LastActivity, existing.LastActivity)
			byKey[key] = existing
		}
	}
	r.mu.RUnlock()

	users := make([]domain.PresenceEntry, 0, len(byKey))
	for _, entry := range byKey {
		users = append(users, entry)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].ConnectTime.Equal(users[j].ConnectTime) {
			return users[i].ConnectTime.Before(users[j].ConnectTime)
		}
		return users[i].Username < users[j].Username
	})

	return domain.PresenceSnapshot{
		Count:   count,
		Users:   users,
		TakenAt: r.now(),
	}
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
