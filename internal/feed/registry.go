package feed

import "github.com/Xausdorf/outing-chat/internal/domain"

type pollEntry struct {
	state    domain.PollViewState
	snapshot *domain.PollSnapshot
	// readSeq - sequence of the read that produced snapshot.
	readSeq uint64
}

// registry - polls tracked by one controller, owned by its loop goroutine.
type registry struct {
	entries map[string]*pollEntry
	order   []string
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*pollEntry),
	}
}

func (r *registry) track(pollID string) *pollEntry {
	if e, ok := r.entries[pollID]; ok {
		return e
	}
	e := &pollEntry{}
	r.entries[pollID] = e
	r.order = append(r.order, pollID)
	return e
}

func (r *registry) get(pollID string) (*pollEntry, bool) {
	e, ok := r.entries[pollID]
	return e, ok
}

// ids returns tracked polls in registration order.
func (r *registry) ids() []string {
	return append([]string(nil), r.order...)
}

// install keeps the newest read: a snapshot whose read began before the
// installed one is dropped.
func (r *registry) install(pollID string, snapshot *domain.PollSnapshot, readSeq uint64) bool {
	e := r.track(pollID)
	if e.snapshot != nil && readSeq < e.readSeq {
		return false
	}
	e.snapshot = snapshot
	e.readSeq = readSeq
	return true
}

func (r *registry) view(pollID string) (PollView, bool) {
	e, ok := r.entries[pollID]
	if !ok || e.snapshot == nil {
		return PollView{}, false
	}
	return Merge(e.snapshot, e.state), true
}

func (r *registry) reset() {
	r.entries = make(map[string]*pollEntry)
	r.order = nil
}
