package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/Studya/internal/api/middlewares"
	"github.com/markdave123-py/Studya/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	notebookID := chi.URLParam(r, "notebookID")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	resp, err := h.chat.Ask(r.Context(), userID, notebookID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	notebookID := chi.URLParam(r, "notebookID")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	turns, err := h.chat.History(r.Context(), userID, notebookID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// Sources returns the stored citations for a past assistant turn.
func (h *ChatHandler) Sources(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserID(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	citations, err := h.chat.Sources(r.Context(), chi.URLParam(r, "turnID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, citations)
}
