// Package testserver is a scripted stand-in for the game backend. It serves
// the REST API and the snapshot channel, records every call and frame it
// receives and pushes whatever snapshots a test hands it. It applies no game
// rules.
package testserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	authproviders "github.com/cbodonnell/clash/pkg/auth/providers"
	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/messages"
	"github.com/cbodonnell/clash/pkg/testserver/middleware"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
)

const (
	APIPrefix   = "/inoka"
	pushTimeout = 5 * time.Second
)

// Call is one REST request received by the server.
type Call struct {
	Method   string
	Path     string
	PlayerID string
	Body     string
}

type Server struct {
	httpServer *httptest.Server

	lock      sync.Mutex
	calls     []Call
	published []*messages.Frame
	statuses  map[string]int
	roll      int
	seat      int
	view      *gametypes.GameSnapshot
	deck      []gametypes.Card
	conns     map[*websocket.Conn]map[string]bool
	connected chan struct{}
}

type Options struct {
	// AuthProvider verifies bearer tokens. Nil accepts anonymous requests.
	AuthProvider authproviders.AuthProvider
	Roll         int
	Seat         int
}

// New starts a server on a loopback port. Callers must Close it.
func New(opts Options) *Server {
	s := &Server{
		statuses:  make(map[string]int),
		roll:      opts.Roll,
		seat:      opts.Seat,
		conns:     make(map[*websocket.Conn]map[string]bool),
		connected: make(chan struct{}, 16),
	}

	authMiddleware := middleware.NewAuthMiddleware(opts.AuthProvider)

	router := mux.NewRouter()
	api := router.PathPrefix(APIPrefix).Subrouter()
	api.Use(authMiddleware)
	api.Use(s.recordMiddleware)
	api.HandleFunc("/player/rollinit", s.handleRollInit).Methods(http.MethodGet)
	api.HandleFunc("/player/cardInPlay", s.handleEmpty).Methods(http.MethodDelete)
	api.HandleFunc("/player/wonClash", s.handleEmpty).Methods(http.MethodPut)
	api.HandleFunc("/player/gotKnockout", s.handleEmpty).Methods(http.MethodPut)
	api.HandleFunc("/player/ready", s.handleEmpty).Methods(http.MethodPut)
	api.HandleFunc("/player/seat", s.handleSeat).Methods(http.MethodGet)
	api.HandleFunc("/player/card/all", s.handleDeck).Methods(http.MethodGet)
	api.HandleFunc("/game/find", s.handleFindGame).Methods(http.MethodGet)
	api.HandleFunc("/game/clash/start", s.handleEmpty).Methods(http.MethodPut)
	api.HandleFunc("/game/clash/processed", s.handleEmpty).Methods(http.MethodPut)

	router.Handle("/ws", authMiddleware(http.HandlerFunc(s.handleWebSocket)))

	s.httpServer = httptest.NewServer(router)
	return s
}

// APIURL is the REST base URL.
func (s *Server) APIURL() string {
	return s.httpServer.URL + APIPrefix
}

// WSURL is the snapshot channel URL.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http") + "/ws"
}

func (s *Server) Close() {
	s.DropConnections()
	s.httpServer.Close()
}

// SetStatus makes method+path answer with code instead of its normal response.
func (s *Server) SetStatus(method, path string, code int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.statuses[method+" "+path] = code
}

func (s *Server) SetRoll(roll int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.roll = roll
}

func (s *Server) SetSeat(seat int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.seat = seat
}

// SetGameView sets the snapshot returned by /game/find without pushing it.
func (s *Server) SetGameView(view *gametypes.GameSnapshot) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.view = view
}

func (s *Server) SetDeck(cards []gametypes.Card) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.deck = cards
}

// Calls returns every REST call received so far.
func (s *Server) Calls() []Call {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts REST calls matching method and path.
func (s *Server) CallCount(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Published returns the frames clients sent to destination.
func (s *Server) Published(destination string) []*messages.Frame {
	s.lock.Lock()
	defer s.lock.Unlock()
	var frames []*messages.Frame
	for _, f := range s.published {
		if f.Destination == destination {
			frames = append(frames, f)
		}
	}
	return frames
}

// Connected is signalled each time a client finishes subscribing.
func (s *Server) Connected() <-chan struct{} {
	return s.connected
}

// Push sends a snapshot to subscribers of its game and serves it from /game/find.
func (s *Server) Push(view *gametypes.GameSnapshot) error {
	payload, err := gametypes.MarshalSnapshot(view)
	if err != nil {
		return err
	}
	s.SetGameView(view)
	return s.PushRaw(messages.GameTopic(view.ID), payload)
}

// PushDeck sends a private hand to every subscribed client.
func (s *Server) PushDeck(cards []gametypes.Card) error {
	payload, err := json.Marshal(cards)
	if err != nil {
		return fmt.Errorf("failed to marshal deck: %v", err)
	}
	s.SetDeck(cards)
	return s.PushRaw(messages.DestinationDeck, payload)
}

// PushRaw sends payload as is to subscribers of destination.
func (s *Server) PushRaw(destination string, payload []byte) error {
	b, err := messages.SerializeFrame(messages.NewFrame(messages.FrameKindMessage, destination, payload))
	if err != nil {
		return err
	}

	s.lock.Lock()
	var targets []*websocket.Conn
	for conn, subs := range s.conns {
		if subs[destination] {
			targets = append(targets, conn)
		}
	}
	s.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	for _, conn := range targets {
		if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
			return fmt.Errorf("failed to push to subscriber: %v", err)
		}
	}
	return nil
}

// DropConnections closes every websocket connection.
func (s *Server) DropConnections() {
	s.lock.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[*websocket.Conn]map[string]bool)
	s.lock.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server dropping connection")
	}
}
