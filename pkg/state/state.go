package state

import (
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
)

// SnapshotHandler is notified after every applied snapshot.
type SnapshotHandler func(snapshot *gametypes.GameSnapshot)

// DeckHandler is notified after every applied deck.
type DeckHandler func(cards []gametypes.Card)

// Cache provides shared access to the latest game snapshot and private hand.
// Implementations must be thread-safe. Subscribers are notified in apply
// order and must not apply to the cache themselves.
type Cache interface {
	// Apply replaces the current snapshot and notifies subscribers once,
	// even when the phase is unchanged. Malformed snapshots are dropped.
	Apply(snapshot *gametypes.GameSnapshot)
	// ApplyIfUnchanged applies snapshot only if nothing was applied since
	// Revision returned revision. It reports whether snapshot was applied.
	ApplyIfUnchanged(snapshot *gametypes.GameSnapshot, revision uint64) bool
	// Revision counts applied snapshots.
	Revision() uint64
	// Current returns the latest snapshot.
	Current() (*gametypes.GameSnapshot, bool)
	// PreviousPhase returns the phase of the snapshot replaced by the last Apply.
	PreviousPhase() (gametypes.Phase, bool)
	// Subscribe registers fn and returns a function removing it.
	Subscribe(fn SnapshotHandler) func()
	// ApplyDeck replaces the private hand and notifies deck subscribers.
	ApplyDeck(cards []gametypes.Card)
	// ApplyDeckIfUnchanged is ApplyIfUnchanged for the private hand.
	ApplyDeckIfUnchanged(cards []gametypes.Card, revision uint64) bool
	// DeckRevision counts applied decks.
	DeckRevision() uint64
	// Deck returns a copy of the private hand.
	Deck() []gametypes.Card
	// SubscribeDeck registers fn and returns a function removing it.
	SubscribeDeck(fn DeckHandler) func()
	// Reset forgets all state but keeps subscribers.
	Reset()
}
