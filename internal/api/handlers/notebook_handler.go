package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/Studya/internal/api/middlewares"
	"github.com/markdave123-py/Studya/internal/services"
)

type NotebookHandler struct {
	users *services.UserService
}

func NewNotebookHandler(users *services.UserService) *NotebookHandler {
	return &NotebookHandler{users: users}
}

type createNotebookRequest struct {
	Title string `json:"title"`
}

func (h *NotebookHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createNotebookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	nb, err := h.users.CreateNotebook(r.Context(), userID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nb)
}

func (h *NotebookHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	nb, err := h.users.GetNotebook(r.Context(), userID, chi.URLParam(r, "notebookID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}
