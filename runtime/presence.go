package runtime

import (
	"sync"

	"chat-hub/contract"

	"github.com/samber/lo"
)

// PresenceTracker owns the binding of usernames to live connections.
// The forward map (username -> sink) and the reverse map (sink -> its
// usernames) are always updated under the same lock, so a lookup can
// never observe a half-updated pair. The online set is exactly the key
// set of the forward map.
type PresenceTracker struct {
	mu     sync.RWMutex
	byUser map[string]contract.EventSink
	byConn map[contract.EventSink]map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		byUser: make(map[string]contract.EventSink),
		byConn: make(map[contract.EventSink]map[string]struct{}),
	}
}

// Register binds a username to a connection, superseding any prior
// binding for that username. The superseded connection is not closed;
// it simply stops receiving traffic addressed to the username.
func (p *PresenceTracker) Register(username string, sink contract.EventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.byUser[username]; ok && prev != sink {
		if names, ok := p.byConn[prev]; ok {
			delete(names, username)
			if len(names) == 0 {
				delete(p.byConn, prev)
			}
		}
	}

	p.byUser[username] = sink
	if _, ok := p.byConn[sink]; !ok {
		p.byConn[sink] = make(map[string]struct{})
	}
	p.byConn[sink][username] = struct{}{}
}

// Unregister removes every binding held by the disconnecting sink and
// returns the usernames that just went offline. Disconnects arrive
// keyed by connection, hence the reverse lookup.
func (p *PresenceTracker) Unregister(sink contract.EventSink) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names, ok := p.byConn[sink]
	if !ok {
		return nil
	}
	delete(p.byConn, sink)

	removed := make([]string, 0, len(names))
	for username := range names {
		// Remove the forward entry only if it still points at this
		// sink; a superseded binding belongs to the newer connection.
		if current, ok := p.byUser[username]; ok && current == sink {
			delete(p.byUser, username)
			removed = append(removed, username)
		}
	}
	return removed
}

// Lookup resolves a username to its live connection, if any.
func (p *PresenceTracker) Lookup(username string) (contract.EventSink, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sink, ok := p.byUser[username]
	return sink, ok
}

func (p *PresenceTracker) IsOnline(username string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byUser[username]
	return ok
}

// Online returns a snapshot of the online-user set.
func (p *PresenceTracker) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Keys(p.byUser)
}
