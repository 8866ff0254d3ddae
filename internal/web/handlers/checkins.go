package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/visitor-desk/internal/database"
)

// CheckInsHandler handles check-in endpoints
type CheckInsHandler struct{}

// NewCheckInsHandler creates a new check-ins handler
func NewCheckInsHandler() *CheckInsHandler {
	return &CheckInsHandler{}
}

// List returns check-ins newest first; ?active=true limits it to visitors still on site
func (h *CheckInsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checkIns, err := database.GetCheckInReader(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "check-in storage not available")
		return
	}

	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	list, err := checkIns.ListCheckIns(ctx, activeOnly, queryLimit(r, 200, 1000))
	if err != nil {
		log.Printf("Failed to list check-ins: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list check-ins")
		return
	}
	if list == nil {
		list = []database.CheckIn{}
	}
	respondJSON(w, http.StatusOK, list)
}

// CheckOut ends an active check-in
func (h *CheckInsHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid check-in ID")
		return
	}

	checkIns, err := database.GetCheckInWriter(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "check-in storage not available")
		return
	}

	if err := checkIns.CheckOut(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no active check-in with this ID")
			return
		}
		log.Printf("Failed to check out %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to check out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
