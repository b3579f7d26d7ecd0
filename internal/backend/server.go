// ABOUTME: Reference chat backend serving the conversation API over HTTP
// ABOUTME: Accepts sends, streams replies as SSE, and persists conversations in a Store

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/dedupe"
	"github.com/2389/chatline/internal/store"
)

const (
	// titleLimit is how many characters of text become a conversation title.
	titleLimit = 50

	// pendingTTL bounds how long an accepted send waits for its stream.
	pendingTTL = 5 * time.Minute

	shutdownTimeout = 5 * time.Second
)

// pendingReply is an accepted send waiting for GET /api/chat?stream=true.
type pendingReply struct {
	conversationID string
	history        []api.Message
	acceptedAt     time.Time
}

// Server is the reference backend. Only one reply is pending at a time; a
// newer send replaces an undrained one.
type Server struct {
	store     store.Store
	responder Responder
	seen      *dedupe.Cache
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending *pendingReply
}

// Config holds the Server's collaborators.
type Config struct {
	Store     store.Store
	Responder Responder
	// Seen tracks Idempotency-Key values. Nil disables duplicate detection.
	Seen   *dedupe.Cache
	Logger *slog.Logger
}

// New creates a Server. Responder defaults to an undelayed EchoResponder.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	responder := cfg.Responder
	if responder == nil {
		responder = EchoResponder{}
	}
	return &Server{
		store:     cfg.Store,
		responder: responder,
		seen:      cfg.Seen,
		logger:    logger.With("component", "backend"),
		now:       time.Now,
	}
}

// Handler returns the HTTP handler for every backend route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST "+api.ChatPath, s.handleSend)
	mux.HandleFunc("GET "+api.ChatPath, s.handleStream)
	mux.HandleFunc("GET "+api.ConversationsPath, s.handleListConversations)
	mux.HandleFunc("GET "+api.ConversationsPath+"/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE "+api.ConversationsPath+"/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST "+api.ClearPath, s.handleClear)
	return mux
}

// Run listens on addr and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("backend listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// The parent context is already canceled; shut down on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		s.logger.Info("backend stopped")
		return nil
	})
	return g.Wait()
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type sendRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
}

// handleSend records the user message and queues a reply for the stream.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "No message provided")
		return
	}

	if key := r.Header.Get(api.IdempotencyHeader); key != "" && s.seen != nil && s.seen.Seen(key) {
		s.logger.Info("dropping duplicate send", "idempotency_key", key)
		s.writeJSON(w, http.StatusOK, api.ChatAccepted{Status: api.StatusDuplicate})
		return
	}

	ctx := r.Context()
	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		s.logger.Error("failed to resolve conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if _, err := s.store.SaveMessage(ctx, &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        req.Message,
		CreatedAt:      s.now(),
	}); err != nil {
		s.logger.Error("failed to save user message", "conversation_id", conv.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	full, err := s.store.GetConversation(ctx, conv.ID)
	if err != nil {
		s.logger.Error("failed to load history", "conversation_id", conv.ID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.setPending(&pendingReply{
		conversationID: conv.ID,
		history:        toAPIMessages(full.Messages),
		acceptedAt:     s.now(),
	})

	s.logger.Info("message accepted", "conversation_id", conv.ID, "messages", len(full.Messages))
	s.writeJSON(w, http.StatusOK, api.ChatAccepted{Status: api.StatusAccepted})
}

// resolveConversation returns the requested conversation, creating a new one
// when no id is given or the id is unknown.
func (s *Server) resolveConversation(ctx context.Context, req sendRequest) (*store.Conversation, error) {
	if req.ConversationID != nil && *req.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, *req.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		s.logger.Debug("unknown conversation, starting a new one", "conversation_id", *req.ConversationID)
	}

	now := s.now()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		Title:     makeTitle(req.Message),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Info("conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// handleStream drains the pending reply as an event stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") != "true" {
		s.sendJSONError(w, http.StatusBadRequest, "stream=true is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	pending := s.takePending()
	if pending == nil {
		s.sendJSONError(w, http.StatusNotFound, "No pending reply")
		return
	}

	w.Header().Set("Content-Type", api.EventStreamMIME)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	log := s.logger.With("conversation_id", pending.conversationID)

	var reply strings.Builder
	err := s.responder.Reply(ctx, pending.history, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		reply.WriteString(chunk)
		if err := s.writeSSEEvent(w, api.StreamEvent{Content: chunk}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// The stream ends without done; the client treats that as a failure.
		log.Warn("reply aborted", "error", err, "bytes", reply.Len())
		return
	}

	if err := s.saveReply(ctx, pending.conversationID, reply.String()); err != nil {
		log.Error("failed to save reply", "error", err)
		return
	}

	_ = s.writeSSEEvent(w, api.StreamEvent{ConversationID: pending.conversationID, Done: true})
	flusher.Flush()
	log.Info("reply streamed", "bytes", reply.Len())
}

// saveReply stores the assistant message and retitles the conversation
// from its first reply.
func (s *Server) saveReply(ctx context.Context, conversationID, reply string) error {
	count, err := s.store.SaveMessage(ctx, &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        reply,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return fmt.Errorf("saving assistant message: %w", err)
	}

	if count == 2 {
		if err := s.store.UpdateTitle(ctx, conversationID, makeTitle(reply)); err != nil {
			return fmt.Errorf("updating title: %w", err)
		}
	}
	return nil
}

type messageJSON struct {
	Role      api.Role  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type conversationJSON struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []messageJSON `json:"messages,omitempty"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]conversationJSON, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationJSON{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get conversation", "conversation_id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := conversationJSON{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		Messages:  make([]messageJSON, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		out.Messages = append(out.Messages, messageJSON{Role: api.Role(m.Role), Content: m.Content, Timestamp: m.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete conversation", "conversation_id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.mu.Lock()
	if s.pending != nil && s.pending.conversationID == id {
		s.pending = nil
	}
	s.mu.Unlock()

	s.logger.Info("conversation deleted", "conversation_id", id)
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearConversations(r.Context()); err != nil {
		s.logger.Error("failed to clear conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	s.logger.Info("all conversations cleared")
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) setPending(p *pendingReply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.logger.Debug("replacing undrained reply", "conversation_id", s.pending.conversationID)
	}
	s.pending = p
}

func (s *Server) takePending() *pendingReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending
	s.pending = nil
	if p != nil && s.now().Sub(p.acceptedAt) > pendingTTL {
		s.logger.Debug("discarding expired reply", "conversation_id", p.conversationID)
		return nil
	}
	return p
}

// writeSSEEvent writes one data-only SSE frame.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event api.StreamEvent) error {
	dataJSON, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return err
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", dataJSON)
	return err
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func toAPIMessages(msgs []*store.Message) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, api.Message{Role: api.Role(m.Role), Content: m.Content})
	}
	return out
}

// makeTitle keeps the first titleLimit characters, marking a cut with "...".
func makeTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit]) + "..."
}
