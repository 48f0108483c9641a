// Package presence tracks currently-connected devices and their liveness.
package presence

import (
	"sync"
	"time"

	"github.com/devicelink/signaling-relay/internal/protocol"
	"github.com/devicelink/signaling-relay/internal/ratelimit"
)

// Conn is the borrowed socket handle for a connected device. The registry
// never duplicates it; closing is idempotent because disconnect cleanup may
// race with sweep eviction.
type Conn interface {
	// Send writes one outbound frame. Safe for concurrent use.
	Send(data []byte) error
	// Open reports whether the socket can still accept writes.
	Open() bool
	// Close tears down the socket. Safe to call more than once.
	Close() error
}

type connection struct {
	deviceID    string
	displayName string
	lastSeen    time.Time
	addr        string
	conn        Conn
}

// Registry is the authoritative map of live device connections, keyed by
// device_id. All mutation goes through its methods so the uniqueness
// invariant is enforced in one place.
type Registry struct {
	clock ratelimit.Clock

	mu    sync.Mutex
	conns map[string]*connection
}

func NewRegistry(clock ratelimit.Clock) *Registry {
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	return &Registry{
		clock: clock,
		conns: make(map[string]*connection),
	}
}

// Join upserts a device connection and refreshes its liveness timestamp.
// Re-joining with the same device_id replaces the prior entry (last writer
// wins); the replaced socket is not closed here, its own read loop owns
// that.
func (r *Registry) Join(deviceID, displayName string, conn Conn, addr string) {
	r.mu.Lock()
	r.conns[deviceID] = &connection{
		deviceID:    deviceID,
		displayName: displayName,
		lastSeen:    r.clock.Now(),
		addr:        addr,
		conn:        conn,
	}
	r.mu.Unlock()
}

// Touch refreshes last_seen. A ping from a device the sweep already evicted
// is a no-op, not an error.
func (r *Registry) Touch(deviceID string) {
	r.mu.Lock()
	if c, ok := r.conns[deviceID]; ok {
		c.lastSeen = r.clock.Now()
	}
	r.mu.Unlock()
}

// List returns all devices with an open socket on the same normalized
// address as the requester. If the requester is not registered,
// fallbackAddr (its observed transport address) is used. Ordering is
// unspecified.
func (r *Registry) List(requesterID, fallbackAddr string) []protocol.DeviceSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := fallbackAddr
	if self, ok := r.conns[requesterID]; ok {
		addr = self.addr
	}

	out := make([]protocol.DeviceSummary, 0, len(r.conns))
	for _, c := range r.conns {
		if !c.conn.Open() {
			continue
		}
		if addr != "" && c.addr != addr {
			continue
		}
		out = append(out, protocol.DeviceSummary{
			DeviceID:    c.deviceID,
			DisplayName: c.displayName,
		})
	}
	return out
}

// Lookup returns the socket for a device, for forwarding.
func (r *Registry) Lookup(deviceID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[deviceID]
	if !ok {
		return nil, false
	}
	return c.conn, true
}

// Remove deletes a device's entry. The socket is not closed.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	delete(r.conns, deviceID)
	r.mu.Unlock()
}

// RemoveConn deletes every entry whose socket is identical to conn. Entries
// replaced by a re-join keep their new socket and are untouched when the
// old socket's close fires.
func (r *Registry) RemoveConn(conn Conn) {
	r.mu.Lock()
	for id, c := range r.conns {
		if c.conn == conn {
			delete(r.conns, id)
		}
	}
	r.mu.Unlock()
}

// Sweep evicts and closes every connection idle for longer than ttl.
// It returns the number of evicted entries.
func (r *Registry) Sweep(ttl time.Duration) int {
	now := r.clock.Now()

	r.mu.Lock()
	var evicted []Conn
	for id, c := range r.conns {
		if now.Sub(c.lastSeen) > ttl {
			delete(r.conns, id)
			evicted = append(evicted, c.conn)
		}
	}
	r.mu.Unlock()

	for _, c := range evicted {
		_ = c.Close()
	}
	return len(evicted)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every registered socket and clears the registry. Used on
// shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c.conn)
	}
	r.conns = make(map[string]*connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
