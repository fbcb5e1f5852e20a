package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/cbodonnell/clash/pkg/client/api"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/messages"
	"github.com/cbodonnell/clash/pkg/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	destination string
	payload     json.RawMessage
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, destination string, payload json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{destination: destination, payload: payload})
	return nil
}

func newRESTDispatcher(t *testing.T, routes map[CommandKind]Route) (*Dispatcher, *testserver.Server, *fakePublisher) {
	server := testserver.New(testserver.Options{Roll: 9})
	t.Cleanup(server.Close)

	publisher := &fakePublisher{}
	d := NewDispatcher(NewDispatcherOptions{
		Publisher: publisher,
		API:       api.NewClient(api.NewClientOptions{BaseURL: server.APIURL()}),
		Routes:    routes,
	})
	return d, server, publisher
}

func TestDispatcher_channelPayloads(t *testing.T) {
	card := &gametypes.Card{ID: "c4", Style: gametypes.CardStyleAttacker, Level: 2, MaxHP: 10, CurHP: 10}
	tests := []struct {
		name        string
		cmd         Command
		destination string
		payload     string
	}{
		{name: "start clash", cmd: Command{Kind: CommandStartClash, GameID: "g1"}, destination: messages.DestinationClashStart, payload: `"g1"`},
		{name: "new clash", cmd: Command{Kind: CommandStartNewClash, GameID: "g1"}, destination: messages.DestinationClashNew, payload: `"g1"`},
		{name: "processed", cmd: Command{Kind: CommandDecisionProcessed, GameID: "g1"}, destination: messages.DestinationClashProcessed, payload: `"g1"`},
		{name: "knockout", cmd: Command{Kind: CommandClaimKnockout, PlayerID: "p1"}, destination: messages.DestinationGotKnockout, payload: `"p1"`},
		{name: "forfeit", cmd: Command{Kind: CommandForfeit, PlayerID: "p1"}, destination: messages.DestinationClashForfeit, payload: `"p1"`},
		{name: "ready", cmd: Command{Kind: CommandReady, PlayerID: "p1"}, destination: messages.DestinationPlayerReady, payload: `"p1"`},
		{name: "attack", cmd: Command{Kind: CommandResolveAction, PlayerID: "p1", TargetSeat: gametypes.Seat(2)}, destination: messages.DestinationClashAction, payload: `{"userId":"p1","targetSeat":2}`},
		{name: "skip", cmd: Command{Kind: CommandResolveAction, PlayerID: "p1"}, destination: messages.DestinationClashAction, payload: `{"userId":"p1","targetSeat":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{}
			d := NewDispatcher(NewDispatcherOptions{Publisher: publisher})

			result, err := d.Send(context.Background(), tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, OutcomeAccepted, result.Outcome)
			require.Len(t, publisher.sent, 1)
			assert.Equal(t, tt.destination, publisher.sent[0].destination)
			assert.JSONEq(t, tt.payload, string(publisher.sent[0].payload))
		})
	}

	t.Run("play card", func(t *testing.T) {
		publisher := &fakePublisher{}
		d := NewDispatcher(NewDispatcherOptions{Publisher: publisher})

		_, err := d.Send(context.Background(), Command{Kind: CommandPlayCard, PlayerID: "p1", Card: card})
		require.NoError(t, err)
		require.Len(t, publisher.sent, 1)
		assert.Equal(t, messages.DestinationPlayCard, publisher.sent[0].destination)

		var body struct {
			PlayerID string         `json:"playerId"`
			Card     gametypes.Card `json:"card"`
		}
		require.NoError(t, json.Unmarshal(publisher.sent[0].payload, &body))
		assert.Equal(t, "p1", body.PlayerID)
		assert.Equal(t, *card, body.Card)
	})

	t.Run("play card without card", func(t *testing.T) {
		d := NewDispatcher(NewDispatcherOptions{Publisher: &fakePublisher{}})
		_, err := d.Send(context.Background(), Command{Kind: CommandPlayCard, PlayerID: "p1"})
		assert.Error(t, err)
	})
}

func TestDispatcher_publishError(t *testing.T) {
	publisher := &fakePublisher{err: fmt.Errorf("not connected")}
	d := NewDispatcher(NewDispatcherOptions{Publisher: publisher})

	_, err := d.Send(context.Background(), Command{Kind: CommandForfeit, PlayerID: "p1"})
	assert.ErrorIs(t, err, publisher.err)
}

func TestDispatcher_RollInitiative(t *testing.T) {
	d, server, _ := newRESTDispatcher(t, nil)

	result, err := d.Send(context.Background(), Command{Kind: CommandRollInitiative})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, 9, result.Value)
	assert.Equal(t, 1, server.CallCount(http.MethodGet, "/player/rollinit"))
}

func TestDispatcher_conflictIsSuccess(t *testing.T) {
	tests := []struct {
		name   string
		kind   CommandKind
		method string
		path   string
	}{
		{name: "claim win", kind: CommandClaimWin, method: http.MethodPut, path: "/player/wonClash"},
		{name: "remove card", kind: CommandRemoveCardInPlay, method: http.MethodDelete, path: "/player/cardInPlay"},
		{name: "roll", kind: CommandRollInitiative, method: http.MethodGet, path: "/player/rollinit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, server, _ := newRESTDispatcher(t, nil)
			server.SetStatus(tt.method, tt.path, http.StatusConflict)

			result, err := d.Send(context.Background(), Command{Kind: tt.kind})
			require.NoError(t, err)
			assert.Equal(t, OutcomeConflict, result.Outcome)
		})
	}
}

func TestDispatcher_serverError(t *testing.T) {
	d, server, _ := newRESTDispatcher(t, nil)
	server.SetStatus(http.MethodPut, "/player/wonClash", http.StatusInternalServerError)

	_, err := d.Send(context.Background(), Command{Kind: CommandClaimWin})
	require.Error(t, err)
	assert.False(t, api.IsConflict(err))
}

func TestDispatcher_restRoutes(t *testing.T) {
	rest := map[CommandKind]Route{
		CommandStartClash:        {Transport: TransportREST},
		CommandDecisionProcessed: {Transport: TransportREST},
		CommandReady:             {Transport: TransportREST},
		CommandClaimKnockout:     {Transport: TransportREST},
	}
	d, server, publisher := newRESTDispatcher(t, rest)

	for _, cmd := range []Command{
		{Kind: CommandStartClash, GameID: "g1"},
		{Kind: CommandDecisionProcessed, GameID: "g1"},
		{Kind: CommandReady, PlayerID: "p1"},
		{Kind: CommandClaimKnockout, PlayerID: "p1"},
	} {
		_, err := d.Send(context.Background(), cmd)
		require.NoError(t, err, cmd.String())
	}

	assert.Empty(t, publisher.sent)
	assert.Equal(t, 1, server.CallCount(http.MethodPut, "/game/clash/start"))
	assert.Equal(t, 1, server.CallCount(http.MethodPut, "/game/clash/processed"))
	assert.Equal(t, 1, server.CallCount(http.MethodPut, "/player/ready"))
	assert.Equal(t, 1, server.CallCount(http.MethodPut, "/player/gotKnockout"))
}

func TestDispatcher_invalidRoutes(t *testing.T) {
	d := NewDispatcher(NewDispatcherOptions{
		Publisher: &fakePublisher{},
		Routes: map[CommandKind]Route{
			CommandForfeit:  {Transport: TransportREST},
			CommandClaimWin: {Transport: TransportChannel, Destination: "/app/wonClash"},
		},
	})

	_, err := d.Send(context.Background(), Command{Kind: CommandForfeit})
	assert.Error(t, err)
	_, err = d.Send(context.Background(), Command{Kind: CommandClaimWin})
	assert.Error(t, err)
	_, err = d.Send(context.Background(), Command{Kind: CommandKind(99)})
	assert.Error(t, err)
}
