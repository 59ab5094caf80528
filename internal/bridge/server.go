package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/john/gmodrelay/internal/buffer"
	"github.com/john/gmodrelay/internal/gate"
	"github.com/john/gmodrelay/internal/message"
	"github.com/john/gmodrelay/internal/status"
)

// ChatSender posts a relayed message into the Discord channel. Sends are
// best-effort; failures are logged by the implementation, not returned.
type ChatSender interface {
	SendWebhook(avatarURL, username, content string)
}

// AvatarResolver resolves a Steam ID to an avatar URL.
type AvatarResolver interface {
	Resolve(ctx context.Context, steamID string) (string, error)
}

// Server exposes the game-server-facing HTTP surface of the bridge.
type Server struct {
	server   *http.Server
	gate     *gate.Gate
	buffer   *buffer.Buffer
	resolver AvatarResolver
	sender   ChatSender
	statuses *status.Store
	record   func(ev message.Event, direction string)
}

// New creates a bridge server listening on addr. record, when non-nil, is
// invoked for every message handed to Discord (transcript hook).
func New(addr string, g *gate.Gate, buf *buffer.Buffer, resolver AvatarResolver, sender ChatSender, statuses *status.Store, record func(ev message.Event, direction string)) *Server {
	s := &Server{
		gate:     g,
		buffer:   buf,
		resolver: resolver,
		sender:   sender,
		statuses: statuses,
		record:   record,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /getmessages", s.guarded(s.handleGetMessages))
	mux.HandleFunc("POST /sendmessage", s.guarded(s.handleSendMessage))
	mux.HandleFunc("POST /sendmessagehook", s.guarded(s.handleSendMessageHook))
	mux.HandleFunc("POST /status", s.guarded(s.handleStatus))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Printf("Bridge server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down bridge server...")
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// guarded wraps a handler with the trusted-address check. Denied requests
// get a bare 403; they are expected traffic and not logged.
func (s *Server) guarded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d := s.gate.Check(r.RemoteAddr); !d.Allowed {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// handleGetMessages drains the buffer and returns its contents as an array
// of [username, content] pairs.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	events := s.buffer.DrainAll()
	pairs := make([][2]string, 0, len(events))
	for _, ev := range events {
		pairs = append(pairs, ev.WirePair())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(pairs); err != nil {
		log.Printf("Error encoding drained messages: %v", err)
	}
}

// decodeTriple decodes a JSON body of exactly three strings.
func decodeTriple(r *http.Request) ([3]string, error) {
	var fields []string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return [3]string{}, fmt.Errorf("decode body: %w", err)
	}
	if len(fields) != 3 {
		return [3]string{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	return [3]string{fields[0], fields[1], fields[2]}, nil
}

// handleSendMessage accepts [steamID, username, text], answers immediately
// and resolves the avatar + posts to Discord in the background. Resolution
// failures drop the message.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeTriple(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	steamID, username, text := fields[0], fields[1], fields[2]
	go func() {
		avatarURL, err := s.resolver.Resolve(context.Background(), steamID)
		if err != nil {
			log.Printf("Dropping message from %s: %v", username, err)
			return
		}
		s.relay(avatarURL, username, text)
	}()
}

// handleSendMessageHook accepts [avatarURL, username, text] and posts to
// Discord without a resolution step.
func (s *Server) handleSendMessageHook(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeTriple(r)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	go s.relay(fields[0], fields[1], fields[2])
}

// handleStatus replaces the stored status snapshot wholesale.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var snapshot message.ServerStatus
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	s.statuses.Set(snapshot)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) relay(avatarURL, username, content string) {
	s.sender.SendWebhook(avatarURL, username, content)
	if s.record != nil && content != "" {
		s.record(message.Event{Username: username, Content: content}, "game")
	}
}
