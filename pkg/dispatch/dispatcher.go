package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/clash/pkg/client/api"
	"github.com/cbodonnell/clash/pkg/log"
	"github.com/cbodonnell/clash/pkg/messages"
)

// Publisher sends frames on the snapshot channel.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload json.RawMessage) error
}

// API is the subset of the REST client used for commands.
type API interface {
	RollInitiative(ctx context.Context) (int, error)
	RemoveCardInPlay(ctx context.Context) error
	ClaimWin(ctx context.Context) error
	ClaimKnockout(ctx context.Context) error
	SetReady(ctx context.Context) error
	StartClash(ctx context.Context, gameID string) error
	ClashProcessed(ctx context.Context, gameID string) error
}

// Transport selects how a command reaches the server.
type Transport int

const (
	TransportChannel Transport = iota + 1
	TransportREST
)

// Route describes where one command kind is sent.
type Route struct {
	Transport Transport
	// Destination is the channel destination for TransportChannel.
	Destination string
}

// DefaultRoutes sends everything over the channel except the calls that
// only exist as REST endpoints.
func DefaultRoutes() map[CommandKind]Route {
	return map[CommandKind]Route{
		CommandStartClash:        {Transport: TransportChannel, Destination: messages.DestinationClashStart},
		CommandStartNewClash:     {Transport: TransportChannel, Destination: messages.DestinationClashNew},
		CommandDecisionProcessed: {Transport: TransportChannel, Destination: messages.DestinationClashProcessed},
		CommandPlayCard:          {Transport: TransportChannel, Destination: messages.DestinationPlayCard},
		CommandResolveAction:     {Transport: TransportChannel, Destination: messages.DestinationClashAction},
		CommandClaimKnockout:     {Transport: TransportChannel, Destination: messages.DestinationGotKnockout},
		CommandForfeit:           {Transport: TransportChannel, Destination: messages.DestinationClashForfeit},
		CommandReady:             {Transport: TransportChannel, Destination: messages.DestinationPlayerReady},
		CommandRollInitiative:    {Transport: TransportREST},
		CommandRemoveCardInPlay:  {Transport: TransportREST},
		CommandClaimWin:          {Transport: TransportREST},
	}
}

// Dispatcher turns commands into channel publishes or REST calls.
type Dispatcher struct {
	publisher Publisher
	api       API
	routes    map[CommandKind]Route
}

type NewDispatcherOptions struct {
	Publisher Publisher
	API       API
	// Routes overrides entries of DefaultRoutes.
	Routes map[CommandKind]Route
}

func NewDispatcher(opts NewDispatcherOptions) *Dispatcher {
	routes := DefaultRoutes()
	for kind, route := range opts.Routes {
		routes[kind] = route
	}
	return &Dispatcher{
		publisher: opts.Publisher,
		api:       opts.API,
		routes:    routes,
	}
}

// Send delivers cmd. A REST conflict is reported as OutcomeConflict with a
// nil error since the effect the command asked for already happened.
func (d *Dispatcher) Send(ctx context.Context, cmd Command) (Result, error) {
	route, ok := d.routes[cmd.Kind]
	if !ok {
		return Result{}, fmt.Errorf("no route for %s", cmd.Kind)
	}

	switch route.Transport {
	case TransportChannel:
		return d.publish(ctx, route.Destination, cmd)
	case TransportREST:
		result, err := d.call(ctx, cmd)
		if err != nil {
			if api.IsConflict(err) {
				log.Debug("Treating conflict on %s as success", cmd)
				return Result{Outcome: OutcomeConflict}, nil
			}
			return Result{}, err
		}
		return result, nil
	default:
		return Result{}, fmt.Errorf("unknown transport %d for %s", route.Transport, cmd.Kind)
	}
}

func (d *Dispatcher) publish(ctx context.Context, destination string, cmd Command) (Result, error) {
	if d.publisher == nil {
		return Result{}, fmt.Errorf("no channel configured for %s", cmd.Kind)
	}

	payload, err := channelPayload(cmd)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build payload for %s: %v", cmd.Kind, err)
	}
	if err := d.publisher.Publish(ctx, destination, payload); err != nil {
		return Result{}, fmt.Errorf("failed to publish %s: %w", cmd, err)
	}
	return Result{Outcome: OutcomeAccepted}, nil
}

func (d *Dispatcher) call(ctx context.Context, cmd Command) (Result, error) {
	if d.api == nil {
		return Result{}, fmt.Errorf("no API configured for %s", cmd.Kind)
	}

	var err error
	switch cmd.Kind {
	case CommandRollInitiative:
		roll, err := d.api.RollInitiative(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeAccepted, Value: roll}, nil
	case CommandRemoveCardInPlay:
		err = d.api.RemoveCardInPlay(ctx)
	case CommandClaimWin:
		err = d.api.ClaimWin(ctx)
	case CommandClaimKnockout:
		err = d.api.ClaimKnockout(ctx)
	case CommandReady:
		err = d.api.SetReady(ctx)
	case CommandStartClash:
		err = d.api.StartClash(ctx, cmd.GameID)
	case CommandDecisionProcessed:
		err = d.api.ClashProcessed(ctx, cmd.GameID)
	default:
		return Result{}, fmt.Errorf("%s has no REST endpoint", cmd.Kind)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeAccepted}, nil
}

func channelPayload(cmd Command) (json.RawMessage, error) {
	var v interface{}
	switch cmd.Kind {
	case CommandStartClash, CommandStartNewClash, CommandDecisionProcessed:
		v = cmd.GameID
	case CommandClaimKnockout, CommandForfeit, CommandReady:
		v = cmd.PlayerID
	case CommandPlayCard:
		if cmd.Card == nil {
			return nil, fmt.Errorf("no card to play")
		}
		v = messages.PlayCard{PlayerID: cmd.PlayerID, Card: cmd.Card}
	case CommandResolveAction:
		v = messages.ClashAction{UserID: cmd.PlayerID, TargetSeat: cmd.TargetSeat}
	default:
		return nil, fmt.Errorf("%s cannot be published", cmd.Kind)
	}
	return json.Marshal(v)
}
