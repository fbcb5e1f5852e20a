package clash

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/clash/pkg/dispatch"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/log"
	"github.com/cbodonnell/clash/pkg/queue"
	"github.com/cbodonnell/clash/pkg/session"
	"github.com/cbodonnell/clash/pkg/state"
)

const eventQueueSize = 1024

// Dispatcher sends commands decided by the machine.
type Dispatcher interface {
	Send(ctx context.Context, cmd dispatch.Command) (dispatch.Result, error)
}

// GameAPI is the subset of the REST client the engine reads from.
type GameAPI interface {
	FetchSeat(ctx context.Context) (int, error)
	FetchGameView(ctx context.Context) (*gametypes.GameSnapshot, error)
	FetchDeck(ctx context.Context) ([]gametypes.Card, error)
}

// ProgressStore persists the progress of one player in one game.
type ProgressStore interface {
	Load(ctx context.Context, gameID, playerID string) (session.Progress, error)
	SavePhase(ctx context.Context, gameID, playerID string, phase gametypes.Phase) error
	SaveRoll(ctx context.Context, gameID, playerID string, roll int) error
	ClearRoll(ctx context.Context, gameID, playerID string) error
}

// ProjectionHandler is notified after every processed event.
type ProjectionHandler func(p Projection)

type snapshotEvent struct {
	snapshot *gametypes.GameSnapshot
}

type deckEvent struct {
	cards []gametypes.Card
}

type timerEvent struct {
	timer Timer
}

type resultEvent struct {
	cmd    dispatch.Command
	entry  uint64
	result dispatch.Result
	err    error
}

type actionEvent struct {
	apply func(m *Machine) ([]Effect, error)
	reply chan error
}

// Engine owns a Machine and runs it on a single event loop. Snapshots,
// timers, command results and user actions are queued and handled one at a
// time. Effects are executed in order: persistence synchronously, commands
// and timers in the background with their outcome queued back.
type Engine struct {
	playerID   string
	cache      state.Cache
	dispatcher Dispatcher
	api        GameAPI
	progress   ProgressStore
	timing     Timing
	events     *queue.InMemoryQueue

	// fields below are owned by the loop goroutine
	machine *Machine
	gameID  string
	timers  []*time.Timer

	lock        sync.Mutex
	running     bool
	latest      Projection
	subscribers map[int]ProjectionHandler
	nextID      int
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe []func()
	inFlight    sync.WaitGroup
}

type NewEngineOptions struct {
	PlayerID      string
	Cache         state.Cache
	Dispatcher    Dispatcher
	API           GameAPI
	ProgressStore ProgressStore
	Timing        Timing
}

func NewEngine(opts NewEngineOptions) *Engine {
	return &Engine{
		playerID:    opts.PlayerID,
		cache:       opts.Cache,
		dispatcher:  opts.Dispatcher,
		api:         opts.API,
		progress:    opts.ProgressStore,
		timing:      opts.Timing,
		events:      queue.NewInMemoryQueue(eventQueueSize),
		subscribers: make(map[int]ProjectionHandler),
	}
}

// Start loads the persisted progress, learns the local seat and begins
// following gameID. The engine runs until Stop is called or ctx is done.
func (e *Engine) Start(ctx context.Context, gameID string) error {
	if gameID == "" {
		return fmt.Errorf("game id must not be empty")
	}

	e.lock.Lock()
	if e.running {
		e.lock.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.lock.Unlock()

	progress, err := e.progress.Load(ctx, gameID, e.playerID)
	if err != nil {
		return fmt.Errorf("failed to load progress: %v", err)
	}
	seat, err := e.api.FetchSeat(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch seat: %v", err)
	}
	log.Info("Following game %s as seat %d (last observed phase %s)", gameID, seat, progress.LastObservedPhase)

	e.gameID = gameID
	e.machine = NewMachine(NewMachineOptions{
		GameID:   gameID,
		PlayerID: e.playerID,
		Seat:     seat,
		Progress: progress,
		Timing:   e.timing,
	})
	e.events.ClearQueue()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.lock.Lock()
	e.running = true
	e.cancel = cancel
	e.done = done
	e.latest = e.machine.Projection()
	e.unsubscribe = []func(){
		e.cache.Subscribe(func(s *gametypes.GameSnapshot) {
			e.post(snapshotEvent{snapshot: s})
		}),
		e.cache.SubscribeDeck(func(cards []gametypes.Card) {
			e.post(deckEvent{cards: cards})
		}),
	}
	e.lock.Unlock()

	go e.run(loopCtx, done)

	if cards := e.cache.Deck(); len(cards) > 0 {
		e.post(deckEvent{cards: cards})
	}
	if s, ok := e.cache.Current(); ok {
		e.post(snapshotEvent{snapshot: s})
	}
	if err := e.Resync(ctx); err != nil {
		log.Warn("Initial sync failed, waiting for the channel: %v", err)
	}

	return nil
}

// Stop ends the event loop and cancels every timer.
func (e *Engine) Stop() {
	e.lock.Lock()
	if !e.running {
		e.lock.Unlock()
		return
	}
	e.running = false
	cancel, done, unsubscribe := e.cancel, e.done, e.unsubscribe
	e.unsubscribe = nil
	e.lock.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	cancel()
	<-done
	e.inFlight.Wait()
}

// Resync fetches the game view and hand over REST and applies them to the
// cache. It heals the view after a reconnect. A fetched view is dropped when
// the channel delivered a snapshot while the request was in flight, so the
// machine never sees an older phase after a newer one.
func (e *Engine) Resync(ctx context.Context) error {
	revision, deckRevision := e.cache.Revision(), e.cache.DeckRevision()

	view, err := e.api.FetchGameView(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch game view: %w", err)
	}
	if !e.cache.ApplyIfUnchanged(view, revision) {
		log.Debug("Game view in phase %s was superseded by the channel", view.Phase)
	}

	cards, err := e.api.FetchDeck(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch deck: %w", err)
	}
	if !e.cache.ApplyDeckIfUnchanged(cards, deckRevision) {
		log.Debug("Fetched deck was superseded by the channel")
	}
	return nil
}

// Subscribe registers fn for projections and returns a function removing it.
// Handlers run on the event loop and must not wait on engine actions.
func (e *Engine) Subscribe(fn ProjectionHandler) func() {
	e.lock.Lock()
	defer e.lock.Unlock()

	id := e.nextID
	e.nextID++
	e.subscribers[id] = fn
	return func() {
		e.lock.Lock()
		defer e.lock.Unlock()
		delete(e.subscribers, id)
	}
}

// Projection returns the latest projection.
func (e *Engine) Projection() Projection {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.latest
}

func (e *Engine) ToggleReady(ctx context.Context) error {
	return e.act(ctx, func(m *Machine) ([]Effect, error) { return m.ToggleReady() })
}

func (e *Engine) PlayCard(ctx context.Context, card gametypes.Card) error {
	return e.act(ctx, func(m *Machine) ([]Effect, error) { return m.PlayCard(card) })
}

func (e *Engine) SelectTarget(ctx context.Context, seat int) error {
	return e.act(ctx, func(m *Machine) ([]Effect, error) { return nil, m.SelectTarget(seat) })
}

func (e *Engine) AttackCard(ctx context.Context, seat int) error {
	return e.act(ctx, func(m *Machine) ([]Effect, error) { return m.AttackCard(seat) })
}

func (e *Engine) SkipTurn(ctx context.Context) error {
	return e.act(ctx, func(m *Machine) ([]Effect, error) { return m.SkipTurn() })
}

func (e *Engine) ForfeitClash(ctx context.Context) error {
	return e.act(ctx, func(m *Machine) ([]Effect, error) { return m.ForfeitClash() })
}

// act runs apply on the loop and waits for it.
func (e *Engine) act(ctx context.Context, apply func(m *Machine) ([]Effect, error)) error {
	e.lock.Lock()
	running, done := e.running, e.done
	e.lock.Unlock()
	if !running {
		return &ErrNotStarted{}
	}

	reply := make(chan error, 1)
	if err := e.events.Enqueue(actionEvent{apply: apply, reply: reply}); err != nil {
		return fmt.Errorf("failed to queue action: %v", err)
	}

	select {
	case err := <-reply:
		return err
	case <-done:
		return &ErrNotStarted{}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) post(event interface{}) {
	if err := e.events.Enqueue(event); err != nil {
		log.Error("Dropping %T: %v", event, err)
	}
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.events.Ready():
			events, err := e.events.ReadAllMessages()
			if err != nil {
				log.Error("Failed to read events: %v", err)
				continue
			}
			for _, event := range events {
				if ctx.Err() != nil {
					return
				}
				e.handle(ctx, event)
			}
		}
	}
}

func (e *Engine) handle(ctx context.Context, event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic handling %T: %v", event, r)
			if ev, ok := event.(actionEvent); ok {
				select {
				case ev.reply <- fmt.Errorf("action failed: %v", r):
				default:
				}
			}
		}
	}()

	var effects []Effect
	switch ev := event.(type) {
	case snapshotEvent:
		effects = e.machine.OnSnapshot(ev.snapshot)
	case deckEvent:
		e.machine.OnDeck(ev.cards)
	case timerEvent:
		effects = e.machine.OnTimer(ev.timer)
	case resultEvent:
		effects = e.machine.OnCommandResult(ev.cmd, ev.entry, ev.result, ev.err)
	case actionEvent:
		var err error
		effects, err = ev.apply(e.machine)
		ev.reply <- err
	default:
		log.Error("Unhandled event type: %T", event)
		return
	}

	e.execute(ctx, effects)
	e.publish()
}

func (e *Engine) execute(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		log.Trace("Executing %v", effect)
		switch eff := effect.(type) {
		case PersistPhase:
			if err := e.progress.SavePhase(ctx, e.gameID, e.playerID, eff.Phase); err != nil {
				log.Error("Failed to persist phase %s: %v", eff.Phase, err)
			}
		case PersistRoll:
			if err := e.progress.SaveRoll(ctx, e.gameID, e.playerID, eff.Roll); err != nil {
				log.Error("Failed to persist initiative roll: %v", err)
			}
		case ClearRoll:
			if err := e.progress.ClearRoll(ctx, e.gameID, e.playerID); err != nil {
				log.Error("Failed to clear initiative roll: %v", err)
			}
		case CancelTimers:
			e.stopTimers()
		case Schedule:
			timer := eff.Timer
			e.timers = append(e.timers, time.AfterFunc(eff.After, func() {
				e.post(timerEvent{timer: timer})
			}))
		case Send:
			e.inFlight.Add(1)
			go func(send Send) {
				defer e.inFlight.Done()
				result, err := e.dispatcher.Send(ctx, send.Command)
				if ctx.Err() != nil {
					return
				}
				e.post(resultEvent{cmd: send.Command, entry: send.Entry, result: result, err: err})
			}(eff)
		default:
			log.Error("Unhandled effect type: %T", effect)
		}
	}
}

func (e *Engine) stopTimers() {
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = nil
}

func (e *Engine) publish() {
	p := e.machine.Projection()

	e.lock.Lock()
	e.latest = p
	subscribers := make([]ProjectionHandler, 0, len(e.subscribers))
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.subscribers[id]; ok {
			subscribers = append(subscribers, fn)
		}
	}
	e.lock.Unlock()

	for _, fn := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Recovered from panic in projection subscriber: %v", r)
				}
			}()
			fn(p)
		}()
	}
}
