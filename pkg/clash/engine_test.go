package clash

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/clash/pkg/client/api"
	"github.com/cbodonnell/clash/pkg/client/network"
	"github.com/cbodonnell/clash/pkg/dispatch"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/messages"
	"github.com/cbodonnell/clash/pkg/session"
	"github.com/cbodonnell/clash/pkg/state"
	"github.com/cbodonnell/clash/pkg/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeDispatcher struct {
	mu      sync.Mutex
	cmds    []dispatch.Command
	results map[dispatch.CommandKind]dispatch.Result
	errs    map[dispatch.CommandKind]error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		results: make(map[dispatch.CommandKind]dispatch.Result),
		errs:    make(map[dispatch.CommandKind]error),
	}
}

func (d *fakeDispatcher) Send(_ context.Context, cmd dispatch.Command) (dispatch.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
	if err := d.errs[cmd.Kind]; err != nil {
		return dispatch.Result{}, err
	}
	if result, ok := d.results[cmd.Kind]; ok {
		return result, nil
	}
	return dispatch.Result{Outcome: dispatch.OutcomeAccepted}, nil
}

func (d *fakeDispatcher) count(kind dispatch.CommandKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, cmd := range d.cmds {
		if cmd.Kind == kind {
			n++
		}
	}
	return n
}

func (d *fakeDispatcher) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cmds)
}

type fakeAPI struct {
	mu   sync.Mutex
	seat int
	view *gametypes.GameSnapshot
	deck []gametypes.Card
	// when set, FetchGameView signals fetching and waits for release
	fetching chan struct{}
	release  chan struct{}
}

func (a *fakeAPI) FetchSeat(context.Context) (int, error) {
	return a.seat, nil
}

func (a *fakeAPI) FetchGameView(context.Context) (*gametypes.GameSnapshot, error) {
	a.mu.Lock()
	view, fetching, release := a.view, a.fetching, a.release
	a.mu.Unlock()

	if fetching != nil {
		fetching <- struct{}{}
		<-release
	}
	if view == nil {
		return nil, fmt.Errorf("not in game")
	}
	return view, nil
}

func (a *fakeAPI) FetchDeck(context.Context) ([]gametypes.Card, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deck, nil
}

type engineFixture struct {
	engine     *Engine
	cache      *state.InMemoryCache
	dispatcher *fakeDispatcher
	api        *fakeAPI
	progress   *session.ProgressStore
}

func newEngineFixture(t *testing.T, view *gametypes.GameSnapshot, timing Timing) *engineFixture {
	f := &engineFixture{
		cache:      state.NewInMemoryCache(),
		dispatcher: newFakeDispatcher(),
		api:        &fakeAPI{seat: selfSeat, view: view, deck: []gametypes.Card{card("x", 10)}},
		progress:   session.NewProgressStore(session.NewMemoryStore()),
	}
	f.engine = NewEngine(NewEngineOptions{
		PlayerID:      testPlayerID,
		Cache:         f.cache,
		Dispatcher:    f.dispatcher,
		API:           f.api,
		ProgressStore: f.progress,
		Timing:        timing,
	})
	return f
}

func (f *engineFixture) start(t *testing.T) {
	require.NoError(t, f.engine.Start(context.Background(), testGameID))
	t.Cleanup(f.engine.Stop)
}

func (f *engineFixture) waitNarrative(t *testing.T, want string) {
	require.Eventually(t, func() bool {
		return f.engine.Projection().Narrative == want
	}, waitFor, tick, "narrative never became %q (last %q)", want, f.engine.Projection().Narrative)
}

func TestEngine_rollsOnceAndPersists(t *testing.T) {
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseClashRollInit), Timing{})
	f.dispatcher.results[dispatch.CommandRollInitiative] = dispatch.Result{Outcome: dispatch.OutcomeAccepted, Value: 6}
	f.start(t)

	f.waitNarrative(t, "Rolled a 6 for initiative")
	for i := 0; i < 5; i++ {
		f.cache.Apply(newSnapshot(gametypes.PhaseClashRollInit))
	}
	f.waitNarrative(t, "Rolled a 6 for initiative")
	assert.Equal(t, 1, f.dispatcher.count(dispatch.CommandRollInitiative))

	progress, err := f.progress.Load(context.Background(), testGameID, testPlayerID)
	require.NoError(t, err)
	assert.Equal(t, session.Progress{LastObservedPhase: gametypes.PhaseClashRollInit, InitiativeRoll: 6, HasRoll: true}, progress)
}

func TestEngine_reloadDoesNotRepeatRoll(t *testing.T) {
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseClashRollInit), Timing{})
	ctx := context.Background()
	require.NoError(t, f.progress.SavePhase(ctx, testGameID, testPlayerID, gametypes.PhaseClashRollInit))
	require.NoError(t, f.progress.SaveRoll(ctx, testGameID, testPlayerID, 7))
	f.start(t)

	f.waitNarrative(t, "Rolled a 7 for initiative")
	f.cache.Apply(newSnapshot(gametypes.PhaseClashRollInit))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, f.dispatcher.total())
}

func TestEngine_clashFlow(t *testing.T) {
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseDrawingCards), Timing{})
	f.dispatcher.results[dispatch.CommandRollInitiative] = dispatch.Result{Outcome: dispatch.OutcomeAccepted, Value: 3}
	f.start(t)
	f.waitNarrative(t, narrativeWaitingForCards)

	f.cache.Apply(newSnapshot(gametypes.PhaseCountDown))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandStartClash) == 1 }, waitFor, tick)

	f.cache.Apply(newSnapshot(gametypes.PhaseClashRollInit))
	f.waitNarrative(t, "Rolled a 3 for initiative")

	f.cache.Apply(newSnapshot(gametypes.PhaseClashPlayerTurn, withInitiative(3, map[int]int{3: selfSeat, 1: bobSeat})))
	f.waitNarrative(t, "It's your turn!")
	require.NoError(t, f.engine.AttackCard(context.Background(), bobSeat))
	assert.False(t, f.engine.Projection().MyTurn)
	assert.True(t, IsActionNotAllowed(f.engine.AttackCard(context.Background(), bobSeat)))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandResolveAction) == 1 }, waitFor, tick)

	f.cache.Apply(newSnapshot(gametypes.PhaseClashProcessingDecision,
		withCards(map[int]gametypes.Card{selfSeat: card("a", 10), bobSeat: card("b", 0)}),
		withAction(gametypes.Seat(selfSeat), gametypes.Seat(bobSeat), 10)))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandClaimKnockout) == 1 }, waitFor, tick)
	assert.Equal(t, 0, f.dispatcher.count(dispatch.CommandDecisionProcessed))

	f.cache.Apply(newSnapshot(gametypes.PhaseClashConcluded, withCards(map[int]gametypes.Card{selfSeat: card("a", 10)})))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandStartNewClash) == 1 }, waitFor, tick)
	f.waitNarrative(t, "Alice won the clash!")
}

func TestEngine_conflictIsSuccess(t *testing.T) {
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseDrawingCards), Timing{})
	f.dispatcher.results[dispatch.CommandStartClash] = dispatch.Result{Outcome: dispatch.OutcomeConflict}
	f.dispatcher.results[dispatch.CommandRollInitiative] = dispatch.Result{Outcome: dispatch.OutcomeAccepted, Value: 2}
	f.start(t)

	f.cache.Apply(newSnapshot(gametypes.PhaseCountDown))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandStartClash) == 1 }, waitFor, tick)

	f.cache.Apply(newSnapshot(gametypes.PhaseClashRollInit))
	f.waitNarrative(t, "Rolled a 2 for initiative")
}

func TestEngine_failedCommandIsNotRetried(t *testing.T) {
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseClashProcessingDecision), Timing{})
	f.dispatcher.errs[dispatch.CommandDecisionProcessed] = fmt.Errorf("connection refused")
	f.start(t)

	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandDecisionProcessed) == 1 }, waitFor, tick)
	f.cache.Apply(newSnapshot(gametypes.PhaseClashProcessingDecision))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.dispatcher.count(dispatch.CommandDecisionProcessed))
}

func TestEngine_failedActionHealsOnNextSnapshot(t *testing.T) {
	turn := func() *gametypes.GameSnapshot {
		return newSnapshot(gametypes.PhaseClashPlayerTurn, withInitiative(3, map[int]int{3: selfSeat, 1: bobSeat}))
	}
	f := newEngineFixture(t, turn(), Timing{})
	f.dispatcher.errs[dispatch.CommandResolveAction] = fmt.Errorf("not connected")
	f.start(t)
	f.waitNarrative(t, narrativeYourTurn)

	require.NoError(t, f.engine.AttackCard(context.Background(), bobSeat))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandResolveAction) == 1 }, waitFor, tick)
	f.dispatcher.mu.Lock()
	delete(f.dispatcher.errs, dispatch.CommandResolveAction)
	f.dispatcher.mu.Unlock()

	f.cache.Apply(turn())
	require.Eventually(t, func() bool {
		return f.engine.SkipTurn(context.Background()) == nil
	}, waitFor, tick, "turn never unlocked after the failed attack")
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandResolveAction) == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return !f.engine.Projection().MyTurn }, waitFor, tick)
}

func TestEngine_resyncSupersededByPush(t *testing.T) {
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseClashPlayerTurn), Timing{})
	f.start(t)
	require.Eventually(t, func() bool {
		return f.engine.Projection().Phase == gametypes.PhaseClashPlayerTurn
	}, waitFor, tick)

	f.api.mu.Lock()
	f.api.fetching = make(chan struct{})
	f.api.release = make(chan struct{})
	f.api.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- f.engine.Resync(context.Background()) }()
	<-f.api.fetching

	f.cache.Apply(newSnapshot(gametypes.PhaseClashProcessingDecision))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandDecisionProcessed) == 1 }, waitFor, tick)

	close(f.api.release)
	require.NoError(t, <-errc)

	current, ok := f.cache.Current()
	require.True(t, ok)
	assert.Equal(t, gametypes.PhaseClashProcessingDecision, current.Phase)

	f.cache.Apply(newSnapshot(gametypes.PhaseClashProcessingDecision))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.dispatcher.count(dispatch.CommandDecisionProcessed))
	assert.Equal(t, gametypes.PhaseClashProcessingDecision, f.engine.Projection().Phase)
}

func TestEngine_StopCancelsTimers(t *testing.T) {
	timing := Timing{CountdownTicks: 1, CountdownInterval: 50 * time.Millisecond}
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseCountDown), timing)
	require.NoError(t, f.engine.Start(context.Background(), testGameID))
	f.waitNarrative(t, "Clash starting in 1...")

	f.engine.Stop()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, f.dispatcher.count(dispatch.CommandStartClash))
	assert.True(t, IsNotStarted(f.engine.SkipTurn(context.Background())))
}

func TestEngine_countdownCancelledByNewPhase(t *testing.T) {
	timing := Timing{CountdownTicks: 1, CountdownInterval: 50 * time.Millisecond}
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseCountDown), timing)
	f.start(t)
	f.waitNarrative(t, "Clash starting in 1...")

	f.cache.Apply(newSnapshot(gametypes.PhaseClashRollHP))
	f.waitNarrative(t, narrativeRollingHP)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, f.dispatcher.count(dispatch.CommandStartClash))
}

func TestEngine_Subscribe(t *testing.T) {
	f := newEngineFixture(t, newSnapshot(gametypes.PhaseWaitingForPlayers), Timing{})

	var mu sync.Mutex
	var seen []Projection
	f.engine.Subscribe(func(Projection) { panic("bad subscriber") })
	unsubscribe := f.engine.Subscribe(func(p Projection) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	})
	f.start(t)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return false
		}
		last := seen[len(seen)-1]
		return last.Narrative == "Game starting..." && len(last.Hand) == 1
	}, waitFor, tick)

	unsubscribe()
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	f.cache.Apply(newSnapshot(gametypes.PhaseWaitingForPlayers))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, n, len(seen))
	mu.Unlock()

	assert.Len(t, f.engine.Projection().Hand, 1)
}

func TestEngine_Start(t *testing.T) {
	f := newEngineFixture(t, nil, Timing{})
	assert.Error(t, f.engine.Start(context.Background(), ""))
	assert.True(t, IsNotStarted(f.engine.ToggleReady(context.Background())))

	// a failed initial sync is not fatal
	f.start(t)
	assert.Error(t, f.engine.Start(context.Background(), testGameID))

	f.cache.Apply(newSnapshot(gametypes.PhaseWaitingForPlayers))
	f.waitNarrative(t, "Game starting...")
	require.NoError(t, f.engine.ToggleReady(context.Background()))
	require.Eventually(t, func() bool { return f.dispatcher.count(dispatch.CommandReady) == 1 }, waitFor, tick)
}

// TestEngine_againstServer wires the engine to the real clients and a
// scripted server.
func TestEngine_againstServer(t *testing.T) {
	server := testserver.New(testserver.Options{Roll: 4, Seat: selfSeat})
	t.Cleanup(server.Close)
	server.SetGameView(newSnapshot(gametypes.PhaseDrawingCards))
	server.SetDeck([]gametypes.Card{card("x", 10)})

	cache := state.NewInMemoryCache()
	client := api.NewClient(api.NewClientOptions{BaseURL: server.APIURL()})
	channel := network.NewChannelClient(network.NewChannelClientOptions{
		URL:            server.WSURL(),
		GameID:         testGameID,
		OnSnapshot:     cache.Apply,
		OnDeck:         cache.ApplyDeck,
		ReconnectDelay: 10 * time.Millisecond,
	})
	require.NoError(t, channel.Start(context.Background()))
	t.Cleanup(func() { channel.Stop() })

	select {
	case <-server.Connected():
	case <-time.After(waitFor):
		t.Fatal("channel never connected")
	}
	require.Eventually(t, channel.Connected, waitFor, tick)

	engine := NewEngine(NewEngineOptions{
		PlayerID:      testPlayerID,
		Cache:         cache,
		Dispatcher:    dispatch.NewDispatcher(dispatch.NewDispatcherOptions{Publisher: channel, API: client}),
		API:           client,
		ProgressStore: session.NewProgressStore(session.NewMemoryStore()),
	})
	require.NoError(t, engine.Start(context.Background(), testGameID))
	t.Cleanup(engine.Stop)

	require.NoError(t, server.Push(newSnapshot(gametypes.PhaseCountDown)))
	require.Eventually(t, func() bool {
		return len(server.Published(messages.DestinationClashStart)) == 1
	}, waitFor, tick)

	require.NoError(t, server.Push(newSnapshot(gametypes.PhaseClashRollInit)))
	require.NoError(t, server.Push(newSnapshot(gametypes.PhaseClashRollInit)))
	require.Eventually(t, func() bool {
		return engine.Projection().Narrative == "Rolled a 4 for initiative"
	}, waitFor, tick)
	assert.Equal(t, 1, server.CallCount(http.MethodGet, "/player/rollinit"))

	server.SetStatus(http.MethodPut, "/player/wonClash", http.StatusConflict)
	require.NoError(t, server.Push(newSnapshot(gametypes.PhaseClashPlayerTurn,
		withCards(map[int]gametypes.Card{selfSeat: card("a", 10)}))))
	require.Eventually(t, func() bool {
		return server.CallCount(http.MethodPut, "/player/wonClash") == 1
	}, waitFor, tick)
}
