// Package events implements the indexer's broadcast fanout (E in
// spec.md's component naming): every subscriber gets its own buffered
// channel of NewHistory/NewBlock/Reorg notifications, and a subscriber
// that falls behind is disconnected rather than allowed to apply
// backpressure to the indexer's own hot path.
//
// Grounded on daglabs-btcd's netadapter router (per-peer outbound queue,
// drop-and-disconnect on a full queue) adapted from per-peer network
// fanout to in-process subscriber fanout.
package events

import (
	"sync"

	"github.com/nintondo/doge20indexer/internal/errs"
	"github.com/nintondo/doge20indexer/internal/log"
	"github.com/nintondo/doge20indexer/internal/model"
)

// EventKind tags the variant of an Event.
type EventKind uint8

const (
	KindNewHistory EventKind = iota
	KindNewBlock
	KindReorg
)

// Event is one notification delivered to subscribers. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	History model.HistoryEntry // KindNewHistory
	Height  uint32              // KindNewBlock: the new block's height
	Hash    model.Txid          // KindNewBlock

	// ReorgToHeight is the height the chain was unwound to (KindReorg).
	ReorgToHeight uint32
}

// subscriberCapacity bounds how far a subscriber may lag before being
// dropped (spec.md §4.9).
const subscriberCapacity = 256

// Bus fans out Events to every live subscriber.
type Bus struct {
	mu   sync.Mutex
	subs map[uint64]chan Event
	next uint64
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a new subscriber and returns its event channel.
// Call the returned function when done to release it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberCapacity)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			close(existing)
			delete(b.subs, id)
		}
	}
	return ch, unsubscribe
}

// Publish delivers ev to every live subscriber, dropping (and
// disconnecting) any whose queue is full.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Events.Warn().Uint64("subscriber", id).Err(errs.New(errs.KindSubscriberLag, "events: subscriber queue full")).Msg("dropping lagging subscriber")
			close(ch)
			delete(b.subs, id)
		}
	}
}

// PublishHistory is a convenience wrapper for the common NewHistory case.
func (b *Bus) PublishHistory(h model.HistoryEntry) {
	b.Publish(Event{Kind: KindNewHistory, History: h})
}

// PublishBlock is a convenience wrapper for the common NewBlock case.
func (b *Bus) PublishBlock(height uint32, hash model.Txid) {
	b.Publish(Event{Kind: KindNewBlock, Height: height, Hash: hash})
}

// PublishReorg is a convenience wrapper for the Reorg case.
func (b *Bus) PublishReorg(toHeight uint32) {
	b.Publish(Event{Kind: KindReorg, ReorgToHeight: toHeight})
}
