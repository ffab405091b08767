package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/Studya/internal/api/middlewares"
	"github.com/markdave123-py/Studya/internal/core"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/progress"
	"github.com/markdave123-py/Studya/internal/services"
)

type JobHandler struct {
	db         core.DbClient
	dispatcher *jobs.Dispatcher
	gen        *services.GenerationService
	bus        progress.Bus
}

func NewJobHandler(db core.DbClient, dispatcher *jobs.Dispatcher, gen *services.GenerationService, bus progress.Bus) *JobHandler {
	return &JobHandler{db: db, dispatcher: dispatcher, gen: gen, bus: bus}
}

type submitJobRequest struct {
	Kind        string   `json:"kind"` // summary | quiz | flashcard
	DocumentIDs []string `json:"document_ids,omitempty"`
	Count       int      `json:"count,omitempty"`
}

// Submit queues a generation job for a notebook and returns 202 with the
// queued job row; progress streams separately.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	notebookID := chi.URLParam(r, "notebookID")

	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	switch req.Kind {
	case models.JobKindSummary, models.JobKindQuiz, models.JobKindFlashcard:
	default:
		http.Error(w, fmt.Sprintf("unknown job kind %q", req.Kind), http.StatusBadRequest)
		return
	}

	nb, err := h.db.GetNotebookByID(r.Context(), notebookID)
	if err != nil || nb == nil || nb.UserID != userID {
		http.Error(w, "notebook not found", http.StatusNotFound)
		return
	}

	set, err := h.dispatcher.Submit(r.Context(), notebookID, userID, req.Kind, services.GenerationInput{
		DocumentIDs: req.DocumentIDs,
		Count:       req.Count,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, set)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	set, err := h.db.GetAiSetByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if set == nil || set.UserID != userID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// History lists recent jobs for a notebook, optionally filtered by kind.
func (h *JobHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	notebookID := chi.URLParam(r, "notebookID")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sets, err := h.gen.History(r.Context(), userID, notebookID, r.URL.Query().Get("kind"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

// Events streams job progress over server-sent events until the client
// disconnects or the job finishes.
func (h *JobHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID := chi.URLParam(r, "jobID")

	set, err := h.db.GetAiSetByID(r.Context(), jobID)
	if err != nil || set == nil || set.UserID != userID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsub, err := h.bus.SubscribeJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial snapshot so late subscribers see the current state.
	writeSSE(w, "status", set)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, "progress", ev)
			flusher.Flush()
			if ev.Percent >= 100 {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
