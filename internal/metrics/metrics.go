package metrics

import "sync"

// Event counter names.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"

	PresenceJoins        = "presence_joins"
	PresencePings        = "presence_pings"
	PresenceListRequests = "presence_list_requests"
	PresenceEvicted      = "presence_evicted"

	PairingCreated   = "pairing_created"
	PairingCompleted = "pairing_completed"
	PairingCancelled = "pairing_cancelled"
	PairingRejected  = "pairing_rejected"
	PairingExpired   = "pairing_expired"
	PairingNotFound  = "pairing_not_found"
	PairingSwept     = "pairing_swept"

	ForwardsOK     = "forwards_ok"
	ForwardsFailed = "forwards_failed"

	MalformedDropped = "malformed_dropped"
	InvalidPayload   = "invalid_payload"
	RateLimitedClose = "rate_limited_close"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay is small enough that a full metrics SDK would dominate the
// binary; counters plus the Prometheus text handler cover what operators
// actually scrape.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
