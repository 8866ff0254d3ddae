package handlers

import (
	"net/http"

	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/database"
)

// Camera sources reported to the frontend
const (
	CameraSourceBrowser  = "browser"
	CameraSourceSnapshot = "snapshot"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse is what the kiosk frontend needs to drive a flow
type ConfigResponse struct {
	CameraSource       string               `json:"camera_source"`
	FrameWidth         int                  `json:"frame_width"`
	FrameHeight        int                  `json:"frame_height"`
	AutoCheckInDelayMs int64                `json:"auto_checkin_delay_ms"`
	VisitorTypes       []config.VisitorType `json:"visitor_types"`
	StorageAvailable   bool                 `json:"storage_available"`
}

// Get returns the kiosk configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	source := CameraSourceBrowser
	if h.config.Camera.UseSnapshot() {
		source = CameraSourceSnapshot
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		CameraSource:       source,
		FrameWidth:         h.config.Enrollment.FrameWidth,
		FrameHeight:        h.config.Enrollment.FrameHeight,
		AutoCheckInDelayMs: h.config.Enrollment.AutoCheckInDelay.Milliseconds(),
		VisitorTypes:       h.visitorTypes(),
		StorageAvailable:   database.IsInitialized(),
	})
}

// VisitorTypes returns the visitor type catalog
func (h *ConfigHandler) VisitorTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.visitorTypes())
}

func (h *ConfigHandler) visitorTypes() []config.VisitorType {
	if h.config.VisitorTypes.Types == nil {
		return []config.VisitorType{}
	}
	return h.config.VisitorTypes.Types
}
