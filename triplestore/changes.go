/*
changes.go - Change-event broadcaster

PURPOSE:
  Store implementations embed a Broadcaster to fan TripleChange events out
  to every live subscriber (the Query Engine's invalidator, the devtools
  inspector, application code) without coupling to how many there are.

DELIVERY:
  Each subscriber gets its own buffered channel. A slow subscriber that
  falls behind has old events dropped for it rather than blocking the
  writer that is mid-commit - commit-order delivery is only guaranteed
  between the writer and a subscriber that keeps up, matching the
  "unbounded stream" framing of Changes (unbounded in count, not in
  per-subscriber buffering).
*/
package triplestore

import "sync"

const changeBufferSize = 256

// Broadcaster fans TripleChange events out to subscribers. Its zero value
// is ready to use.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan TripleChange
	next int
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. Safe to call concurrently with Publish.
func (b *Broadcaster) Subscribe() (<-chan TripleChange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan TripleChange)
	}
	id := b.next
	b.next++
	ch := make(chan TripleChange, changeBufferSize)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

// Publish delivers change to every current subscriber. If a subscriber's
// buffer is full, the oldest queued event for that subscriber is dropped
// to make room rather than blocking the caller.
func (b *Broadcaster) Publish(change TripleChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}
