package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/pagestitch/internal/browser"
	"github.com/shehryarbajwa/pagestitch/internal/capture"
	"github.com/shehryarbajwa/pagestitch/internal/composite"
	"github.com/shehryarbajwa/pagestitch/internal/executor"
	"github.com/shehryarbajwa/pagestitch/internal/geometry"
	"github.com/shehryarbajwa/pagestitch/internal/session"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// TabStore opens and tracks capture targets
type TabStore interface {
	Open(ctx context.Context, req models.OpenTabRequest) (models.Tab, error)
	Get(tabID string) (models.Tab, error)
	List() []models.Tab
	Close(tabID string) error
}

// Capturer runs captures and the other category sends
type Capturer interface {
	Capture(ctx context.Context, tabID string, req models.CaptureRequest) (capture.Result, error)
	Upload(ctx context.Context, tabID string, req models.UploadRequest) (capture.Result, error)
	SendMessage(ctx context.Context, tabID string, req models.MessageRequest) (capture.Result, error)
}

// SessionLookup finds a tab's active capture session
type SessionLookup interface {
	Lookup(tabID string) (*session.Session, bool)
	List() []models.Capture
}

// HistoryLister reads capture history
type HistoryLister interface {
	List() []models.HistoryEntry
}

// ProgressStreamer streams a tab's capture progress over a websocket
type ProgressStreamer interface {
	ServeTab(w http.ResponseWriter, r *http.Request, tabID string)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	tabs     TabStore
	capturer Capturer
	sessions SessionLookup
	history  HistoryLister
	progress ProgressStreamer
}

// NewHandler creates a new HTTP handler
func NewHandler(tabs TabStore, capturer Capturer, sessions SessionLookup, history HistoryLister, progress ProgressStreamer) *Handler {
	return &Handler{
		tabs:     tabs,
		capturer: capturer,
		sessions: sessions,
		history:  history,
		progress: progress,
	}
}

// OpenTab handles POST /v1/tabs
func (h *Handler) OpenTab(w http.ResponseWriter, r *http.Request) {
	var req models.OpenTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	tab, err := h.tabs.Open(r.Context(), req)
	if err != nil {
		log.Printf("❌ Failed to open %s: %v", req.URL, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tab)
}

// ListTabs handles GET /v1/tabs
func (h *Handler) ListTabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tabs.List())
}

// GetTab handles GET /v1/tabs/{id}
func (h *Handler) GetTab(w http.ResponseWriter, r *http.Request) {
	tab, err := h.tabs.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

// CloseTab handles DELETE /v1/tabs/{id}
func (h *Handler) CloseTab(w http.ResponseWriter, r *http.Request) {
	if err := h.tabs.Close(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCapture handles POST /v1/tabs/{id}/captures
func (h *Handler) CreateCapture(w http.ResponseWriter, r *http.Request) {
	tabID := mux.Vars(r)["id"]

	var req models.CaptureRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	switch req.Mode {
	case "", models.ModeVisibleArea, models.ModeFullPage:
	default:
		writeError(w, http.StatusBadRequest, "mode must be visible-area or full-page")
		return
	}
	if _, err := h.tabs.Get(tabID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	res, err := h.capturer.Capture(r.Context(), tabID, req)
	writeResult(w, "Capture", tabID, res, err)
}

// CreateUpload handles POST /v1/tabs/{id}/uploads
func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	tabID := mux.Vars(r)["id"]

	var req models.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if _, err := h.tabs.Get(tabID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	res, err := h.capturer.Upload(r.Context(), tabID, req)
	writeResult(w, "Upload", tabID, res, err)
}

// CreateMessage handles POST /v1/tabs/{id}/messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	tabID := mux.Vars(r)["id"]

	var req models.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if _, err := h.tabs.Get(tabID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	res, err := h.capturer.SendMessage(r.Context(), tabID, req)
	writeResult(w, "Message", tabID, res, err)
}

// GetCapture handles GET /v1/tabs/{id}/capture
func (h *Handler) GetCapture(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Lookup(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNoSession.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// ListCaptures handles GET /v1/captures
func (h *Handler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List())
}

// StreamProgress handles GET /v1/tabs/{id}/progress
func (h *Handler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	tabID := mux.Vars(r)["id"]
	if _, err := h.tabs.Get(tabID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.progress.ServeTab(w, r, tabID)
}

// ListHistory handles GET /v1/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.history.List())
}

// statusFor maps capture errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, browser.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, executor.ErrCaptureInProgress),
		errors.Is(err, session.ErrConcurrency):
		return http.StatusConflict
	case errors.Is(err, composite.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, geometry.ErrNoTarget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrSnapshot),
		errors.Is(err, executor.ErrSequence),
		errors.Is(err, composite.ErrEmpty):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, what, tabID string, res capture.Result, err error) {
	if err != nil {
		log.Printf("❌ %s for tab %s failed: %v", what, tabID, err)
		writeJSON(w, statusFor(err), models.Fail(err))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		capture.Result
	}{OK: true, Result: res})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
