package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/visitor-desk/internal/web/handlers"
	"github.com/kozaktomas/visitor-desk/internal/web/middleware"
	"github.com/kozaktomas/visitor-desk/internal/web/static"
)

func (s *Server) setupRoutes() {
	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config)
	enrollmentsHandler := handlers.NewEnrollmentsHandler(s.config, s.manager)
	visitorsHandler := handlers.NewVisitorsHandler()
	checkInsHandler := handlers.NewCheckInsHandler()

	// Health check and metrics (no token required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireKioskToken(s.config.Web.KioskToken))

		// Config
		r.Get("/config", configHandler.Get)
		r.Get("/visitor-types", configHandler.VisitorTypes)

		// Enrollment flows
		r.Post("/enrollments", enrollmentsHandler.Create)
		r.Route("/enrollments/{id}", func(r chi.Router) {
			r.Use(middleware.WithFlow(s.manager))

			r.Get("/", enrollmentsHandler.Get)
			r.Delete("/", enrollmentsHandler.Close)
			r.Get("/events", enrollmentsHandler.Events)
			r.Put("/consent", enrollmentsHandler.SetConsent)
			r.Post("/continue", enrollmentsHandler.Continue)
			r.Post("/camera", enrollmentsHandler.ReportCamera)
			r.Post("/camera/retry", enrollmentsHandler.RetryCamera)
			r.Put("/frame", enrollmentsHandler.PushFrame)
			r.Post("/capture", enrollmentsHandler.Capture)
		})

		// Visitors
		r.Get("/visitors", visitorsHandler.List)
		r.Get("/visitors/{id}", visitorsHandler.Get)

		// Check-ins
		r.Get("/checkins", checkInsHandler.List)
		r.Post("/checkins/{id}/checkout", checkInsHandler.CheckOut)
	})

	// Serve the kiosk frontend
	s.router.Get("/*", s.serveSPA)
}

// contentTypes maps static asset extensions to their content types
var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".ico":   "image/x-icon",
	".woff2": "font/woff2",
}

func contentTypeFor(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		if ct, ok := contentTypes[path[i:]]; ok {
			return ct
		}
	}
	return "application/octet-stream"
}

// serveSPA serves the kiosk single-page application
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	if !static.HasDist() {
		respondNoFrontend(w)
		return
	}

	fs := static.GetFileSystem()
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	f, err := fs.Open(path)
	if err == nil {
		defer f.Close()

		stat, err := f.Stat()
		if err == nil && !stat.IsDir() {
			w.Header().Set("Content-Type", contentTypeFor(path))

			// Add cache headers for static assets
			if strings.HasPrefix(path, "/assets/") {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}

			w.WriteHeader(http.StatusOK)
			io.Copy(w, f)
			return
		}
	}

	// Client-side routes get index.html; missing assets are a 404
	if strings.HasPrefix(path, "/assets/") {
		http.NotFound(w, r)
		return
	}
	indexFile, err := fs.Open("/index.html")
	if err != nil {
		respondNoFrontend(w)
		return
	}
	defer indexFile.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, indexFile)
}

func respondNoFrontend(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Visitor Desk</title></head>
<body>
    <h1>Visitor Desk</h1>
    <p>The kiosk frontend is not embedded in this build.</p>
    <p>API is available at <a href="/api/v1/health">/api/v1/health</a></p>
</body>
</html>`))
}
