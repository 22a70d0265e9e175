package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/catalog"
	"github.com/gatewise/gatewise/internal/chat"
	"github.com/gatewise/gatewise/internal/identity"
	"github.com/gatewise/gatewise/internal/registry"
)

// maxChatBodyBytes caps the chat request body.
const maxChatBodyBytes = 64 << 10

type handler struct {
	logger   *slog.Logger
	sessions SessionService
	chat     ChatService
	search   SearchService
	verifier identity.Verifier
	cookies  *cookieCodec
	clientID string
}

// homeResponse is the session bootstrap payload the frontend renders.
type homeResponse struct {
	ClientID  string          `json:"client_id"`
	SessionID string          `json:"session_id"`
	History   []registry.Turn `json:"history"`
}

// home resolves (or creates) the browser's session and returns its history.
// An invalid or missing cookie silently starts a fresh anonymous session.
func (h *handler) home(w http.ResponseWriter, r *http.Request) {
	id, err := h.cookies.Read(r)
	fresh := err != nil
	if fresh {
		id = uuid.New()
	}

	sess, err := h.sessions.ResolveOrCreate(r.Context(), id, nil)
	if err != nil {
		h.logger.Error("resolving session", "error", err)
		WriteError(w, http.StatusInternalServerError, "session_error", "failed to initialize session", h.logger)
		return
	}

	if fresh {
		if err := h.cookies.Issue(w, id); err != nil {
			h.logger.Error("issuing session cookie", "error", err)
			WriteError(w, http.StatusInternalServerError, "session_error", "failed to initialize session", h.logger)
			return
		}
	}

	writeJSON(w, http.StatusOK, homeResponse{
		ClientID:  h.clientID,
		SessionID: sess.ID().String(),
		History:   sess.Turns(),
	})
}

// login verifies the posted credential and binds a new session to the
// verified identity. Any previous session is disposed.
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_form", "malformed form body", h.logger)
		return
	}

	token, err := h.verifier.Verify(r.Context(), r.PostFormValue("credential"))
	if err != nil {
		h.logger.Warn("login rejected",
			"provider", r.PathValue("provider"),
			"error", err,
		)
		WriteError(w, http.StatusUnauthorized, "unauthorized", "credential verification failed", h.logger)
		return
	}

	// Replace any anonymous session; a stale or missing one is fine.
	if old, err := h.cookies.Read(r); err == nil {
		if err := h.sessions.Dispose(old); err != nil && !errors.Is(err, registry.ErrNotFound) {
			h.logger.Warn("disposing previous session", "error", err)
		}
	}

	id := uuid.New()
	if _, err := h.sessions.ResolveOrCreate(r.Context(), id, token); err != nil {
		h.logger.Error("creating authenticated session", "error", err)
		WriteError(w, http.StatusInternalServerError, "session_error", "failed to create session", h.logger)
		return
	}
	if err := h.cookies.Issue(w, id); err != nil {
		h.logger.Error("issuing session cookie", "error", err)
		WriteError(w, http.StatusInternalServerError, "session_error", "failed to create session", h.logger)
		return
	}

	h.logger.Info("user logged in",
		"provider", r.PathValue("provider"),
		"subject", token.Subject,
	)

	target := r.Referer()
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

// chatTurn runs one conversation turn and replies with plain text.
func (h *handler) chatTurn(w http.ResponseWriter, r *http.Request) {
	id, err := h.cookies.Read(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "session_not_found", "no active session", h.logger)
		return
	}

	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	reply, err := h.chat.Turn(r.Context(), id, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyPrompt):
			WriteError(w, http.StatusBadRequest, "invalid_input", "prompt must not be empty", h.logger)
		case errors.Is(err, registry.ErrNotFound):
			WriteError(w, http.StatusBadRequest, "session_not_found", "no active session", h.logger)
		default:
			h.logger.Error("chat turn failed", "session_id", id, "error", err)
			WriteError(w, http.StatusInternalServerError, "agent_error", "failed to generate a reply", h.logger)
		}
		return
	}

	writeText(w, http.StatusOK, reply)
}

// reset disposes the current session and clears the cookie.
// An unknown session is a server-side inconsistency, not a client mistake.
func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	id, err := h.cookies.Read(r)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "session_error", "no session to reset", h.logger)
		return
	}

	if err := h.sessions.Dispose(id); err != nil {
		WriteError(w, http.StatusInternalServerError, "session_error", "failed to reset session", h.logger)
		return
	}

	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type searchResponse struct {
	Results []catalog.ScoredAmenity `json:"results"`
}

// similaritySearch runs a direct semantic search over the amenity catalog.
func (h *handler) similaritySearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		WriteError(w, http.StatusBadRequest, "invalid_input", "query must not be empty", h.logger)
		return
	}

	topK, err := strconv.Atoi(r.URL.Query().Get("top_k"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_input", "top_k must be an integer", h.logger)
		return
	}

	results, err := h.search.Search(r.Context(), query, topK)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidTopK) {
			WriteError(w, http.StatusBadRequest, "invalid_input", "top_k must be positive", h.logger)
			return
		}
		h.logger.Error("similarity search failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "search_error", "search failed", h.logger)
		return
	}

	if results == nil {
		results = []catalog.ScoredAmenity{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}
