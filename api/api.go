// Package api exposes the HTTP surface: the streaming chat endpoint plus
// thread and message CRUD. Once a chat stream has begun, failures travel
// in-band as inline markers; the only structured rejection is pre-stream
// validation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"goa.design/clue/log"

	"github.com/huminex/t4chat/runtime/chat/memory"
	"github.com/huminex/t4chat/runtime/chat/message"
	"github.com/huminex/t4chat/runtime/chat/model"
	"github.com/huminex/t4chat/runtime/chat/producer"
	"github.com/huminex/t4chat/runtime/chat/serviceerr"
	"github.com/huminex/t4chat/runtime/chat/store"
	"github.com/huminex/t4chat/runtime/chat/tools"
	"github.com/huminex/t4chat/runtime/chat/turnlock"
)

type (
	// Options wires the server's collaborators.
	Options struct {
		Store    store.Store
		Producer *producer.Producer
		Locker   turnlock.Locker
		Searcher tools.Searcher
		ImageGen tools.ImageGenerator
		Uploader tools.Uploader
		// Memories recalls user memories into the prompt and stores new ones
		// after a turn. Nil disables the feature.
		Memories memory.Store
		// ModelName is the provider model identifier used for turns.
		ModelName string
		// ModelService attributes model failures in error markers.
		ModelService string
		// SystemPrompt prefixes every turn.
		SystemPrompt string
		// WebSearchAvailable gates the per-turn isWebSearch flag.
		WebSearchAvailable bool
	}

	// Server handles the chat API.
	Server struct {
		opts Options
	}

	chatRequest struct {
		ThreadID     string        `json:"threadId"`
		Messages     []wireMessage `json:"messages"`
		IsWebSearch  bool          `json:"isWebSearch"`
		GeminiAPIKey string        `json:"geminiApiKey"`
	}

	wireMessage struct {
		Role    string     `json:"role"`
		Content []wirePart `json:"content"`
	}

	wirePart struct {
		Type  string `json:"type"`
		Text  string `json:"text,omitempty"`
		Image string `json:"image,omitempty"`
	}

	errorBody struct {
		Error errorDetail `json:"error"`
	}

	errorDetail struct {
		Kind       string `json:"kind"`
		Service    string `json:"service"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	}
)

// New builds a Server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Producer == nil {
		return nil, errors.New("producer is required")
	}
	if opts.Locker == nil {
		return nil, errors.New("locker is required")
	}
	return &Server{opts: opts}, nil
}

// Router mounts all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)

	r.HandleFunc("/api/threads", s.handleListThreads).Methods(http.MethodGet)
	r.HandleFunc("/api/threads", s.handleCreateThread).Methods(http.MethodPost)
	r.HandleFunc("/api/threads/{id}", s.handleGetThread).Methods(http.MethodGet)
	r.HandleFunc("/api/threads/{id}", s.handleUpdateThread).Methods(http.MethodPatch)
	r.HandleFunc("/api/threads/{id}", s.handleDeleteThread).Methods(http.MethodDelete)
	r.HandleFunc("/api/threads/{id}/messages", s.handleListMessages).Methods(http.MethodGet)

	r.HandleFunc("/api/messages", s.handleCreateMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/{id}", s.handleDeleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/api/messages/{id}/variants", s.handleAppendVariant).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/{id}/variants/{vid}", s.handleUpdateVariant).Methods(http.MethodPatch)

	if s.opts.Memories != nil {
		r.HandleFunc("/api/memories", s.handleListMemories).Methods(http.MethodGet)
		r.HandleFunc("/api/memories", s.handleDeleteAllMemories).Methods(http.MethodDelete)
		r.HandleFunc("/api/memories/{id}", s.handleDeleteMemory).Methods(http.MethodDelete)
	}
	return r
}

// handleChat streams one turn. Missing or malformed history is the only
// structured rejection; everything after the first byte is in-band.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServiceError(w, serviceerr.NewValidation("chat", "Invalid request body"))
		return
	}
	if len(req.Messages) == 0 {
		writeServiceError(w, serviceerr.NewValidation("chat", "Messages are required"))
		return
	}

	lockKey := req.ThreadID
	if lockKey == "" {
		lockKey = userID(r)
	}
	release, err := s.opts.Locker.Acquire(ctx, lockKey)
	if err != nil {
		if errors.Is(err, turnlock.ErrLocked) {
			writeServiceError(w, &serviceerr.ServiceError{
				Kind:       serviceerr.KindValidation,
				Service:    "chat",
				Message:    "A turn is already in flight for this thread",
				StatusCode: http.StatusConflict,
			})
			return
		}
		log.Errorf(ctx, err, "acquire turn lock")
		writeServiceError(w, serviceerr.Classify(err, "chat", ""))
		return
	}
	defer release()

	registry := tools.NewRegistry(tools.TurnOptions{
		ImageAPIKey:      req.GeminiAPIKey,
		WebSearchEnabled: req.IsWebSearch && s.opts.WebSearchAvailable,
		Searcher:         s.opts.Searcher,
		ImageGen:         s.opts.ImageGen,
		Uploader:         s.opts.Uploader,
	})

	history := decodeHistory(req.Messages)
	turn := s.withMemories(ctx, userID(r), history)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	err = s.opts.Producer.StreamTurn(ctx, w, producer.TurnRequest{
		Model:        s.opts.ModelName,
		ModelService: s.opts.ModelService,
		SystemPrompt: s.opts.SystemPrompt,
		Messages:     turn,
		Tools:        registry,
	})
	if err != nil {
		// Validation failed before any byte was written.
		var se *serviceerr.ServiceError
		if !errors.As(err, &se) {
			se = serviceerr.Classify(err, "chat", "")
		}
		writeServiceError(w, se)
		return
	}
	if s.opts.Memories != nil {
		if err := s.opts.Memories.Remember(ctx, userID(r), history); err != nil {
			log.Errorf(ctx, err, "store memories")
		}
	}
}

// withMemories prepends the user's recalled memories as an assistant message,
// matching the prompt layout the model was tuned against. Recall failures are
// logged and the turn proceeds without memories.
func (s *Server) withMemories(ctx context.Context, uid string, history []*model.Message) []*model.Message {
	if s.opts.Memories == nil {
		return history
	}
	query := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			query = history[i].Content
			break
		}
	}
	mems, err := s.opts.Memories.Relevant(ctx, uid, query)
	if err != nil {
		log.Errorf(ctx, err, "recall memories")
		return history
	}
	if len(mems) == 0 {
		return history
	}
	texts := make([]string, 0, len(mems))
	for _, m := range mems {
		texts = append(texts, m.Text)
	}
	out := make([]*model.Message, 0, len(history)+1)
	out = append(out, &model.Message{
		Role:    model.RoleAssistant,
		Content: "user memories: " + strings.Join(texts, "\n"),
	})
	return append(out, history...)
}

// decodeHistory flattens wire messages into model messages. Image parts are
// referenced by URL in the text so text-only providers still see them.
func decodeHistory(msgs []wireMessage) []*model.Message {
	out := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		var b strings.Builder
		for _, p := range m.Content {
			switch p.Type {
			case "text":
				b.WriteString(p.Text)
			case "image":
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString("[attachment] ")
				b.WriteString(p.Image)
			}
		}
		role := model.Role(m.Role)
		if role == "" {
			role = model.RoleUser
		}
		out = append(out, &model.Message{Role: role, Content: b.String()})
	}
	return out
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.opts.Store.ListThreads(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if threads == nil {
		threads = []*message.Thread{}
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeServiceError(w, serviceerr.NewValidation("chat", "Invalid request body"))
		return
	}
	th, err := s.opts.Store.CreateThread(r.Context(), userID(r), body.Title)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, th)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	th, err := s.opts.Store.GetThread(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title  *string `json:"title"`
		Pinned *bool   `json:"isPinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeServiceError(w, serviceerr.NewValidation("chat", "Invalid request body"))
		return
	}
	th, err := s.opts.Store.UpdateThread(r.Context(), mux.Vars(r)["id"],
		store.ThreadUpdate{Title: body.Title, Pinned: body.Pinned})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.DeleteThread(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.opts.Store.ListMessages(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*message.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var msg message.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeServiceError(w, serviceerr.NewValidation("chat", "Invalid request body"))
		return
	}
	if msg.Query == "" {
		writeServiceError(w, serviceerr.NewValidation("chat", "userQuery is required"))
		return
	}
	msg.UserID = userID(r)
	created, err := s.opts.Store.CreateMessage(r.Context(), &msg)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.DeleteMessage(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendVariant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
		Model   string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeServiceError(w, serviceerr.NewValidation("chat", "Invalid request body"))
		return
	}
	msg, err := s.opts.Store.AppendVariant(r.Context(), mux.Vars(r)["id"],
		message.Variant{Content: body.Content, Model: body.Model})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleUpdateVariant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeServiceError(w, serviceerr.NewValidation("chat", "Invalid request body"))
		return
	}
	vars := mux.Vars(r)
	msg, err := s.opts.Store.UpdateVariant(r.Context(), vars["id"], vars["vid"], body.Content)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	mems, err := s.opts.Memories.List(r.Context(), userID(r))
	if err != nil {
		writeMemoryError(w, r, err)
		return
	}
	if mems == nil {
		mems = []memory.Memory{}
	}
	writeJSON(w, http.StatusOK, mems)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Memories.Delete(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeMemoryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllMemories(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Memories.DeleteAll(r.Context(), userID(r)); err != nil {
		writeMemoryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// userID identifies the caller. Authentication is out of scope; the id comes
// from a header with a development fallback.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, se *serviceerr.ServiceError) {
	writeJSON(w, se.StatusCode, errorBody{Error: errorDetail{
		Kind:       string(se.Kind),
		Service:    se.Service,
		Message:    se.Message,
		StatusCode: se.StatusCode,
	}})
}

func writeMemoryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, memory.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Kind:       string(serviceerr.KindUnknown),
			Service:    "memory",
			Message:    "Not found",
			StatusCode: http.StatusNotFound,
		}})
		return
	}
	log.Errorf(r.Context(), err, "memory operation failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
		Kind:       string(serviceerr.KindUnknown),
		Service:    "memory",
		Message:    "An unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
	}})
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{
			Kind:       string(serviceerr.KindUnknown),
			Service:    "store",
			Message:    "Not found",
			StatusCode: http.StatusNotFound,
		}})
		return
	}
	log.Errorf(r.Context(), err, "store operation failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
		Kind:       string(serviceerr.KindUnknown),
		Service:    "store",
		Message:    "An unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
	}})
}
