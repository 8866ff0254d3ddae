package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/visitor-desk/internal/database"
)

// VisitorsHandler handles visitor directory endpoints
type VisitorsHandler struct{}

// NewVisitorsHandler creates a new visitors handler
func NewVisitorsHandler() *VisitorsHandler {
	return &VisitorsHandler{}
}

// VisitorResponse is a visitor with the number of registered faces
type VisitorResponse struct {
	database.Visitor
	Enrollments int `json:"enrollments"`
}

// VisitorDetailResponse is a visitor with their face enrollments
type VisitorDetailResponse struct {
	database.Visitor
	Enrollments []database.FaceEnrollment `json:"enrollments"`
}

// List searches visitors by name (?q=), newest first
func (h *VisitorsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	visitors, err := database.GetVisitorReader(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "visitor storage not available")
		return
	}
	enrollments, err := database.GetEnrollmentReader(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "enrollment storage not available")
		return
	}

	found, err := visitors.SearchVisitors(ctx, r.URL.Query().Get("q"), queryLimit(r, 50, 500))
	if err != nil {
		log.Printf("Failed to search visitors: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to search visitors")
		return
	}

	ids := make([]string, len(found))
	for i, v := range found {
		ids[i] = v.ID
	}
	counts, err := enrollments.CountEnrollmentsByVisitors(ctx, ids)
	if err != nil {
		log.Printf("Failed to count enrollments: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to count enrollments")
		return
	}

	result := make([]VisitorResponse, len(found))
	for i, v := range found {
		result[i] = VisitorResponse{Visitor: v, Enrollments: counts[v.ID]}
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns a visitor with their enrollments
func (h *VisitorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	visitors, err := database.GetVisitorReader(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "visitor storage not available")
		return
	}
	enrollments, err := database.GetEnrollmentReader(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "enrollment storage not available")
		return
	}

	v, err := visitors.GetVisitor(ctx, id)
	if err != nil {
		log.Printf("Failed to get visitor %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get visitor")
		return
	}
	if v == nil {
		respondError(w, http.StatusNotFound, "visitor not found")
		return
	}

	list, err := enrollments.ListEnrollments(ctx, v.ID)
	if err != nil {
		log.Printf("Failed to list enrollments for %s: %v", v.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to list enrollments")
		return
	}
	if list == nil {
		list = []database.FaceEnrollment{}
	}

	respondJSON(w, http.StatusOK, VisitorDetailResponse{Visitor: *v, Enrollments: list})
}
