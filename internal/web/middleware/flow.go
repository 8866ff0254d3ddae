package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/visitor-desk/internal/enrollment"
)

const flowContextKey contextKey = "flow"

// WithFlow is middleware that looks up the enrollment flow named by the {id} URL
// parameter and adds it to the context. Unknown IDs get a 404.
func WithFlow(m *enrollment.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flow := m.Get(chi.URLParam(r, "id"))
			if flow == nil {
				http.Error(w, `{"error": "enrollment not found"}`, http.StatusNotFound)
				return
			}

			ctx := context.WithValue(r.Context(), flowContextKey, flow)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetFlowFromContext retrieves the enrollment flow from the request context.
// Returns nil if no flow is available.
func GetFlowFromContext(ctx context.Context) *enrollment.Flow {
	flow, ok := ctx.Value(flowContextKey).(*enrollment.Flow)
	if !ok {
		return nil
	}
	return flow
}

// SetFlowInContext adds a flow to the context.
// This is primarily for testing - use WithFlow middleware in production.
func SetFlowInContext(ctx context.Context, flow *enrollment.Flow) context.Context {
	return context.WithValue(ctx, flowContextKey, flow)
}

// MustGetFlow retrieves the flow from context.
// If not available, writes an error response and returns nil.
// Handlers should return immediately after receiving nil.
func MustGetFlow(ctx context.Context, w http.ResponseWriter) *enrollment.Flow {
	flow := GetFlowFromContext(ctx)
	if flow == nil {
		http.Error(w, `{"error": "enrollment not available"}`, http.StatusInternalServerError)
		return nil
	}
	return flow
}
