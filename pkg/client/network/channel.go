package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/log"
	"github.com/cbodonnell/clash/pkg/messages"
	"github.com/cbodonnell/clash/pkg/queue"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	// OutboundQueueSize bounds the number of frames waiting to be written
	OutboundQueueSize = 256

	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// ChannelClient keeps a websocket subscription to one game open, reconnecting
// with backoff until stopped. Handlers run on the reader goroutine and must
// not block.
type ChannelClient struct {
	url               string
	token             string
	gameID            string
	outbound          queue.Queue
	onSnapshot        func(*types.GameSnapshot)
	onDeck            func([]types.Card)
	onConnect         func()
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration

	connected   atomic.Bool
	cancel      context.CancelFunc
	waitGroup   sync.WaitGroup
	lifecycleMu sync.Mutex
}

type NewChannelClientOptions struct {
	URL    string
	Token  string
	GameID string
	// OnSnapshot receives every valid snapshot pushed for the game.
	OnSnapshot func(*types.GameSnapshot)
	// OnDeck receives every private hand pushed for the player.
	OnDeck func([]types.Card)
	// OnConnect runs after each successful (re)subscription.
	OnConnect         func()
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func NewChannelClient(opts NewChannelClientOptions) *ChannelClient {
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	maxReconnectDelay := opts.MaxReconnectDelay
	if maxReconnectDelay < reconnectDelay {
		maxReconnectDelay = DefaultMaxReconnectDelay
		if maxReconnectDelay < reconnectDelay {
			maxReconnectDelay = reconnectDelay
		}
	}

	return &ChannelClient{
		url:               opts.URL,
		token:             opts.Token,
		gameID:            opts.GameID,
		outbound:          queue.NewInMemoryQueue(OutboundQueueSize),
		onSnapshot:        opts.OnSnapshot,
		onDeck:            opts.OnDeck,
		onConnect:         opts.OnConnect,
		reconnectDelay:    reconnectDelay,
		maxReconnectDelay: maxReconnectDelay,
	}
}

// Start connects in the background. It returns immediately.
func (c *ChannelClient) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("channel client already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		c.run(ctx)
	}()

	return nil
}

// Stop closes the connection and waits for the background loop to exit.
func (c *ChannelClient) Stop() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.cancel == nil {
		log.Warn("Channel client already stopped")
		return nil
	}
	c.cancel()
	c.cancel = nil

	log.Debug("Waiting for channel client to stop")
	c.waitGroup.Wait()
	c.outbound.ClearQueue()
	log.Debug("Channel client stopped")

	return nil
}

// Connected reports whether the channel is currently subscribed.
func (c *ChannelClient) Connected() bool {
	return c.connected.Load()
}

// Publish queues a command for destination. Success means the frame was
// accepted for transmission, not that the server applied it.
func (c *ChannelClient) Publish(ctx context.Context, destination string, payload json.RawMessage) error {
	if !c.Connected() {
		return &ErrNotConnected{}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame := messages.NewFrame(messages.FrameKindSend, destination, payload)
	if err := c.outbound.Enqueue(frame); err != nil {
		return fmt.Errorf("failed to enqueue frame for %s: %v", destination, err)
	}
	log.Trace("Queued frame %s for %s", frame.ID, destination)

	return nil
}

func (c *ChannelClient) run(ctx context.Context) {
	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return c.dial(ctx)
		},
			backoff.WithBackOff(c.newBackOff()),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Warn("Failed to connect to %s, retrying in %s: %v", c.url, next, err)
			}),
			backoff.WithMaxElapsedTime(0),
		)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error("Giving up connecting to %s: %v", c.url, err)
			continue
		}

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		log.Warn("Channel connection lost: %v", err)
	}
}

func (c *ChannelClient) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.reconnectDelay
	b.MaxInterval = c.maxReconnectDelay
	return b
}

func (c *ChannelClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	log.Info("Connecting to channel at %s", c.url)
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %v", err)
	}
	conn.SetReadLimit(messages.MessageBufferSize)

	return conn, nil
}

// serve runs one connection until it fails or ctx is cancelled.
func (c *ChannelClient) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close(websocket.StatusNormalClosure, "")

	// frames left over from a lost connection may belong to a phase that
	// has since moved on
	if n := c.outbound.Size(); n > 0 {
		log.Warn("Dropping %d frames queued before the connection was lost", n)
		c.outbound.ClearQueue()
	}

	for _, destination := range []string{messages.GameTopic(c.gameID), messages.DestinationDeck} {
		if err := c.writeFrame(ctx, conn, messages.NewFrame(messages.FrameKindSubscribe, destination, nil)); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %v", destination, err)
		}
	}

	c.connected.Store(true)
	defer c.connected.Store(false)
	log.Info("Subscribed to game %s", c.gameID)

	if c.onConnect != nil {
		safely("connect handler", c.onConnect)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readLoop(gctx, conn)
	})
	g.Go(func() error {
		return c.writeLoop(gctx, conn)
	})
	return g.Wait()
}

func (c *ChannelClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, b, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return &ErrConnectionClosedByClient{}
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return &ErrConnectionClosedByServer{}
			}
			return fmt.Errorf("failed to read frame: %v", err)
		}

		if err := c.handleFrame(b); err != nil {
			log.Error("Failed to handle frame: %v", err)
		}
	}
}

func (c *ChannelClient) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.outbound.Ready():
			items, err := c.outbound.ReadAllMessages()
			if err != nil {
				return fmt.Errorf("failed to read outbound frames: %v", err)
			}
			for _, item := range items {
				frame, ok := item.(*messages.Frame)
				if !ok {
					log.Error("Dropping outbound item of type %T", item)
					continue
				}
				if err := c.writeFrame(ctx, conn, frame); err != nil {
					return err
				}
			}
		}
	}
}

func (c *ChannelClient) writeFrame(ctx context.Context, conn *websocket.Conn, frame *messages.Frame) error {
	b, err := messages.SerializeFrame(frame)
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %v", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("failed to write frame to %s: %v", frame.Destination, err)
	}
	return nil
}

// handleFrame routes a pushed frame. Malformed payloads are dropped so a bad
// push never ends the subscription.
func (c *ChannelClient) handleFrame(b []byte) error {
	frame, err := messages.DeserializeFrame(b)
	if err != nil {
		return fmt.Errorf("failed to deserialize frame: %v", err)
	}
	log.Trace("Received %s frame for %s", frame.Kind, frame.Destination)

	switch frame.Kind {
	case messages.FrameKindMessage:
	case messages.FrameKindError:
		return fmt.Errorf("server error for %s: %s", frame.Destination, string(frame.Payload))
	default:
		return fmt.Errorf("unexpected %s frame from server", frame.Kind)
	}

	switch frame.Destination {
	case messages.GameTopic(c.gameID):
		snapshot, err := types.ParseSnapshot(frame.Payload)
		if err != nil {
			log.Warn("Dropping snapshot for game %s: %v", c.gameID, err)
			return nil
		}
		if c.onSnapshot != nil {
			safely("snapshot handler", func() { c.onSnapshot(snapshot) })
		}
	case messages.DestinationDeck:
		cards, err := types.ParseDeck(frame.Payload)
		if err != nil {
			log.Warn("Dropping deck: %v", err)
			return nil
		}
		if c.onDeck != nil {
			safely("deck handler", func() { c.onDeck(cards) })
		}
	default:
		return fmt.Errorf("frame for unknown destination %s", frame.Destination)
	}

	return nil
}

func safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in %s: %v", name, r)
		}
	}()
	fn()
}
