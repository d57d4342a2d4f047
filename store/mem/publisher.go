package mem

import (
	"sync"

	"github.com/viant/dispatchly/store"
)

// publisher fan-outs appended events to session-scoped subscribers. A
// per-session dispatch lock keeps delivery in append order; callbacks run
// synchronously, so subscribers are expected to hand events off quickly.
type publisher struct {
	mu       sync.RWMutex
	sessions map[string]*channel
}

type channel struct {
	dispatch sync.Mutex
	mu       sync.RWMutex
	next     int
	subs     map[int]store.Callback
}

func newPublisher() *publisher {
	return &publisher{sessions: map[string]*channel{}}
}

func (p *publisher) create(session string) *channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.sessions[session]
	if !ok {
		ch = &channel{subs: map[int]store.Callback{}}
		p.sessions[session] = ch
	}
	return ch
}

func (p *publisher) remove(session string) {
	p.mu.Lock()
	delete(p.sessions, session)
	p.mu.Unlock()
}

func (p *publisher) subscribe(session string, callback store.Callback) func() {
	ch := p.create(session)
	ch.mu.Lock()
	token := ch.next
	ch.next++
	ch.subs[token] = callback
	ch.mu.Unlock()
	return func() {
		ch.mu.Lock()
		delete(ch.subs, token)
		ch.mu.Unlock()
	}
}

func (p *publisher) publish(session, eventID string, value []byte) {
	p.mu.RLock()
	ch := p.sessions[session]
	p.mu.RUnlock()
	if ch == nil {
		return
	}
	ch.dispatch.Lock()
	defer ch.dispatch.Unlock()
	ch.mu.RLock()
	callbacks := make([]store.Callback, 0, len(ch.subs))
	for _, callback := range ch.subs {
		callbacks = append(callbacks, callback)
	}
	ch.mu.RUnlock()
	for _, callback := range callbacks {
		callback(eventID, value)
	}
}

func (p *publisher) close() {
	p.mu.Lock()
	p.sessions = map[string]*channel{}
	p.mu.Unlock()
}
