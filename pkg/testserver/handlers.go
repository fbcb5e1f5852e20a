package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cbodonnell/clash/pkg/log"
	"github.com/cbodonnell/clash/pkg/messages"
	"github.com/cbodonnell/clash/pkg/testserver/middleware"
	"nhooyr.io/websocket"
)

// recordMiddleware stores the call and applies any status override.
func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
		path := strings.TrimPrefix(r.URL.Path, APIPrefix)

		s.lock.Lock()
		s.calls = append(s.calls, Call{
			Method:   r.Method,
			Path:     path,
			PlayerID: middleware.PlayerID(r),
			Body:     string(body),
		})
		code, overridden := s.statuses[r.Method+" "+path]
		s.lock.Unlock()

		if overridden {
			http.Error(w, http.StatusText(code), code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleEmpty(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRollInit(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	roll := s.roll
	s.lock.Unlock()
	writeJSON(w, roll)
}

func (s *Server) handleSeat(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	seat := s.seat
	s.lock.Unlock()
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(strconv.Itoa(seat)))
}

func (s *Server) handleDeck(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	deck := s.deck
	s.lock.Unlock()
	if deck == nil {
		http.Error(w, "no deck", http.StatusNotFound)
		return
	}
	writeJSON(w, deck)
}

func (s *Server) handleFindGame(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	view := s.view
	s.lock.Unlock()
	if view == nil {
		http.Error(w, "not in game", http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error("failed to accept websocket: %v", err)
		return
	}
	conn.SetReadLimit(messages.MessageBufferSize)

	s.lock.Lock()
	s.conns[conn] = make(map[string]bool)
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		delete(s.conns, conn)
		s.lock.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		_, b, err := conn.Read(ctx)
		if err != nil {
			return
		}
		frame, err := messages.DeserializeFrame(b)
		if err != nil {
			log.Error("failed to deserialize client frame: %v", err)
			continue
		}

		switch frame.Kind {
		case messages.FrameKindSubscribe:
			s.lock.Lock()
			if subs, ok := s.conns[conn]; ok {
				subs[frame.Destination] = true
			}
			s.lock.Unlock()
			// clients subscribe to their game before their deck
			if frame.Destination == messages.DestinationDeck {
				select {
				case s.connected <- struct{}{}:
				default:
				}
			}
		case messages.FrameKindUnsubscribe:
			s.lock.Lock()
			if subs, ok := s.conns[conn]; ok {
				delete(subs, frame.Destination)
			}
			s.lock.Unlock()
		case messages.FrameKindSend:
			s.lock.Lock()
			s.published = append(s.published, frame)
			s.lock.Unlock()
		default:
			log.Warn("unexpected %s frame from client", frame.Kind)
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
