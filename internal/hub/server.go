package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"accountflow/logger"
)

// Command is an inbound control frame from a connected client. Type selects
// the operation; Action carries the raw bot action payload for the bot
// platform to decode.
type Command struct {
	Type     string          `json:"type"`
	Exchange string          `json:"exchange,omitempty"`
	Symbol   string          `json:"symbol,omitempty"`
	Period   string          `json:"period,omitempty"`
	Action   json.RawMessage `json:"action,omitempty"`
}

const (
	CommandLoadKLines   = "loadKlines"
	CommandRemoveKLines = "removeKlines"
	CommandBotAction    = "botAction"
)

// CommandHandler processes one decoded inbound command. The context is the
// originating connection's request context.
type CommandHandler func(ctx context.Context, cmd Command)

// Server exposes the hub over WebSocket. Each connected client becomes a hub
// subscriber and receives every NotifyMessage as a JSON text frame. Inbound
// text frames are decoded as Commands and handed to the command handler.
type Server struct {
	hub      *Hub
	addr     string
	srv      *http.Server
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	handler  CommandHandler
	log      *logger.Log
}

// NewServer creates a WebSocket bridge listening on addr.
func NewServer(h *Hub, addr string) *Server {
	return &Server{
		hub:  h,
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.GetLogger(),
	}
}

// SetCommandHandler installs the handler for inbound commands. Connections
// established while no handler is set drop their inbound frames.
func (s *Server) SetCommandHandler(handler CommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *Server) commandHandler() CommandHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.srv = &http.Server{Addr: s.addr, Handler: s.Handler()}
	s.mu.Unlock()

	log := s.log.WithComponent("hub_server")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.WithField("addr", s.addr).Info("hub server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("hub server stopped")
		}
	}()
	return nil
}

// Stop shuts the server down and waits for the serve goroutine.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	srv := s.srv
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.WithComponent("hub_server").WithError(err).Warn("hub server shutdown")
	}
	s.wg.Wait()
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithComponent("hub_server")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	id, ch := s.hub.Subscribe()
	log.WithFields(logger.Fields{"subscriber": id, "remote": r.RemoteAddr}).Info("subscriber connected")

	defer func() {
		s.hub.Unsubscribe(id)
		conn.Close()
		log.WithField("subscriber", id).Info("subscriber disconnected")
	}()

	// Reader goroutine decodes inbound command frames and detects close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			kind, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			handler := s.commandHandler()
			if handler == nil {
				continue
			}
			var cmd Command
			if err := json.Unmarshal(raw, &cmd); err != nil {
				log.WithField("subscriber", id).WithError(err).Debug("malformed command frame")
				continue
			}
			handler(r.Context(), cmd)
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.WithField("subscriber", id).WithError(err).Debug("subscriber write failed")
				return
			}
		case <-done:
			return
		}
	}
}
