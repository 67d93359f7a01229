package events

import "sync"

// Publisher delivers event messages. Implementations must not block the caller
// for long; slow sinks drop or buffer.
type Publisher interface {
	Publish(msg Message)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(msg Message)

// Publish implements Publisher.
func (f PublisherFunc) Publish(msg Message) { f(msg) }

// Fanout publishes every message to all of its publishers in order.
type Fanout struct {
	mu   sync.RWMutex
	pubs []Publisher
}

// NewFanout creates a fanout over pubs. Nil entries are skipped.
func NewFanout(pubs ...Publisher) *Fanout {
	f := &Fanout{}
	for _, p := range pubs {
		f.Add(p)
	}
	return f
}

// Add registers another publisher.
func (f *Fanout) Add(p Publisher) {
	if p == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, p)
}

// Publish implements Publisher.
func (f *Fanout) Publish(msg Message) {
	f.mu.RLock()
	pubs := f.pubs
	f.mu.RUnlock()

	for _, p := range pubs {
		p.Publish(msg)
	}
}

// Recorder keeps every published message. Useful in tests.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

// Publish implements Publisher.
func (r *Recorder) Publish(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// OfType returns the recorded messages of type t.
func (r *Recorder) OfType(t MessageType) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}
