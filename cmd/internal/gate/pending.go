package gate

import "sync"

// pendingSet holds the in-flight challenges keyed by member ID.
// Each challenge owns a buffered channel that receives the member's reply.
type pendingSet struct {
	mu      sync.Mutex
	waiters map[string]chan string
}

func newPendingSet() *pendingSet {
	return &pendingSet{waiters: make(map[string]chan string)}
}

// Begin registers a challenge for id. ok is false if one is already running.
func (p *pendingSet) Begin(id string) (<-chan string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.waiters[id]; exists {
		return nil, false
	}
	ch := make(chan string, 1)
	p.waiters[id] = ch
	return ch, true
}

// Offer delivers content to a running challenge. It never blocks; replies
// that arrive while one is already queued are dropped.
func (p *pendingSet) Offer(id, content string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.waiters[id]
	if !ok {
		return false
	}
	select {
	case ch <- content:
		return true
	default:
		return false
	}
}

// End removes the challenge for id.
func (p *pendingSet) End(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

func (p *pendingSet) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.waiters[id]
	return ok
}

func (p *pendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
