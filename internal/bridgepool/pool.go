package bridgepool

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/nerrad567/cync-lan-core/internal/bridge"
	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
)

// Pool is the endpoint -> *bridge.Bridge map, protected by its own
// rw-lock, separate from the device model mutex (§5).
type Pool struct {
	mu   sync.RWMutex
	byEP map[[4]byte]*bridge.Bridge
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{byEP: make(map[[4]byte]*bridge.Bridge)}
}

// Register adds a bridge to the pool, keyed by its endpoint.
func (p *Pool) Register(b *bridge.Bridge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byEP[b.Endpoint] = b
}

// Unregister removes a bridge from the pool if it is still the one
// registered for that endpoint (a reconnect may have already replaced
// it).
func (p *Pool) Unregister(b *bridge.Bridge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.byEP[b.Endpoint]; ok && cur == b {
		delete(p.byEP, b.Endpoint)
	}
}

// Get returns the bridge registered for endpoint, if any.
func (p *Pool) Get(endpoint [4]byte) (*bridge.Bridge, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.byEP[endpoint]
	return b, ok
}

// Ready returns every bridge currently ready_to_control, sorted by
// endpoint for deterministic selection.
func (p *Pool) Ready() []*bridge.Bridge {
	p.mu.RLock()
	defer p.mu.RUnlock()

	eps := make([][4]byte, 0, len(p.byEP))
	for ep := range p.byEP {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return lessEndpoint(eps[i], eps[j]) })

	out := make([]*bridge.Bridge, 0, len(eps))
	for _, ep := range eps {
		b := p.byEP[ep]
		if b.ReadyToControl() && !b.Relay {
			out = append(out, b)
		}
	}
	return out
}

// All returns every registered bridge regardless of readiness, sorted by
// endpoint, used by the periodic maintenance task and pool logger.
func (p *Pool) All() []*bridge.Bridge {
	p.mu.RLock()
	defer p.mu.RUnlock()

	eps := make([][4]byte, 0, len(p.byEP))
	for ep := range p.byEP {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return lessEndpoint(eps[i], eps[j]) })

	out := make([]*bridge.Bridge, 0, len(eps))
	for _, ep := range eps {
		out = append(out, p.byEP[ep])
	}
	return out
}

// SelectForTarget picks a ready bridge for targetID deterministically: a
// hash of the target id over the sorted list of ready endpoints, so
// repeated selection for the same target lands on the same bridge while
// it stays connected, keeping correlation logs meaningful (§4.3 step 2).
// Because the hash is taken over ready bridges only, a bridge that is not
// ready is never chosen; if none are ready, it fails with
// ErrNoBridgesAvailable.
func (p *Pool) SelectForTarget(targetID uint16) (*bridge.Bridge, error) {
	ready := p.Ready()
	if len(ready) == 0 {
		return nil, cyncerrors.ErrNoBridgesAvailable
	}

	h := fnv.New32a()
	h.Write([]byte{byte(targetID >> 8), byte(targetID)})
	idx := int(h.Sum32()) % len(ready)
	if idx < 0 {
		idx += len(ready)
	}
	return ready[idx], nil
}

// Count reports the number of registered bridges and how many are ready.
func (p *Pool) Count() (total, ready int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total = len(p.byEP)
	for _, b := range p.byEP {
		if b.ReadyToControl() {
			ready++
		}
	}
	return total, ready
}

func lessEndpoint(a, b [4]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
