package state

import (
	"sort"
	"sync"

	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/log"
)

type InMemoryCache struct {
	// applyLock serializes applies with their notifications so subscribers
	// see snapshots in the order they were applied.
	applyLock     sync.Mutex
	lock          sync.RWMutex
	current       *gametypes.GameSnapshot
	previousPhase gametypes.Phase
	revision      uint64
	deck          []gametypes.Card
	deckRevision  uint64

	subsLock         sync.Mutex
	nextID           int
	snapshotHandlers map[int]SnapshotHandler
	deckHandlers     map[int]DeckHandler
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		snapshotHandlers: make(map[int]SnapshotHandler),
		deckHandlers:     make(map[int]DeckHandler),
	}
}

func (c *InMemoryCache) Apply(snapshot *gametypes.GameSnapshot) {
	c.apply(snapshot, nil)
}

func (c *InMemoryCache) ApplyIfUnchanged(snapshot *gametypes.GameSnapshot, revision uint64) bool {
	return c.apply(snapshot, &revision)
}

func (c *InMemoryCache) Revision() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.revision
}

func (c *InMemoryCache) apply(snapshot *gametypes.GameSnapshot, revision *uint64) bool {
	if snapshot == nil {
		log.Warn("Dropping nil snapshot")
		return false
	}
	if snapshot.ID == "" {
		log.Warn("Dropping snapshot without a game id in phase %s", snapshot.Phase)
		return false
	}

	c.applyLock.Lock()
	defer c.applyLock.Unlock()

	c.lock.Lock()
	if revision != nil && *revision != c.revision {
		c.lock.Unlock()
		log.Debug("Dropping stale snapshot in phase %s, a newer one was applied", snapshot.Phase)
		return false
	}
	if c.current != nil {
		c.previousPhase = c.current.Phase
	}
	c.current = snapshot
	c.revision++
	c.lock.Unlock()

	log.Trace("Applied snapshot for game %s in phase %s", snapshot.ID, snapshot.Phase)

	for _, fn := range c.snapshotSubscribers() {
		notify(func() { fn(snapshot) })
	}
	return true
}

func (c *InMemoryCache) Current() (*gametypes.GameSnapshot, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.current, c.current != nil
}

func (c *InMemoryCache) PreviousPhase() (gametypes.Phase, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.previousPhase, c.previousPhase != gametypes.PhaseUnknown
}

func (c *InMemoryCache) Subscribe(fn SnapshotHandler) func() {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	id := c.nextID
	c.nextID++
	c.snapshotHandlers[id] = fn

	return func() {
		c.subsLock.Lock()
		defer c.subsLock.Unlock()
		delete(c.snapshotHandlers, id)
	}
}

func (c *InMemoryCache) ApplyDeck(cards []gametypes.Card) {
	c.applyDeck(cards, nil)
}

func (c *InMemoryCache) ApplyDeckIfUnchanged(cards []gametypes.Card, revision uint64) bool {
	return c.applyDeck(cards, &revision)
}

func (c *InMemoryCache) DeckRevision() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.deckRevision
}

func (c *InMemoryCache) applyDeck(cards []gametypes.Card, revision *uint64) bool {
	deck := append([]gametypes.Card(nil), cards...)

	c.applyLock.Lock()
	defer c.applyLock.Unlock()

	c.lock.Lock()
	if revision != nil && *revision != c.deckRevision {
		c.lock.Unlock()
		log.Debug("Dropping stale deck, a newer one was applied")
		return false
	}
	c.deck = deck
	c.deckRevision++
	c.lock.Unlock()

	for _, fn := range c.deckSubscribers() {
		notify(func() { fn(append([]gametypes.Card(nil), deck...)) })
	}
	return true
}

func (c *InMemoryCache) Deck() []gametypes.Card {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return append([]gametypes.Card(nil), c.deck...)
}

func (c *InMemoryCache) SubscribeDeck(fn DeckHandler) func() {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	id := c.nextID
	c.nextID++
	c.deckHandlers[id] = fn

	return func() {
		c.subsLock.Lock()
		defer c.subsLock.Unlock()
		delete(c.deckHandlers, id)
	}
}

func (c *InMemoryCache) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.current = nil
	c.previousPhase = gametypes.PhaseUnknown
	c.deck = nil
	c.revision++
	c.deckRevision++
}

// snapshotSubscribers returns handlers in subscription order.
func (c *InMemoryCache) snapshotSubscribers() []SnapshotHandler {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	ids := make([]int, 0, len(c.snapshotHandlers))
	for id := range c.snapshotHandlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	handlers := make([]SnapshotHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.snapshotHandlers[id])
	}
	return handlers
}

func (c *InMemoryCache) deckSubscribers() []DeckHandler {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	ids := make([]int, 0, len(c.deckHandlers))
	for id := range c.deckHandlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	handlers := make([]DeckHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.deckHandlers[id])
	}
	return handlers
}

// notify runs a subscriber without letting its panic reach the caller.
func notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in cache subscriber: %v", r)
		}
	}()
	fn()
}
