package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed visitor_types.yaml
var visitorTypesYAML []byte

type Config struct {
	FaceService  FaceServiceConfig
	Camera       CameraConfig
	Enrollment   EnrollmentConfig
	Database     DatabaseConfig
	Web          WebConfig
	VisitorTypes VisitorTypesConfig
}

type FaceServiceConfig struct {
	URL        string        // base URL of the face recognition service (e.g., http://faces:5000)
	Timeout    time.Duration // per-request timeout (default 30s)
	CaptureDir string        // directory to save raw responses for debugging (optional)
}

type CameraConfig struct {
	SnapshotURL string // HTTP still-image endpoint of a fixed kiosk camera (optional, browser camera is used when empty)
	Username    string
	Password    string
}

// UseSnapshot reports whether flows should read frames from a fixed HTTP camera
// instead of the visitor's browser.
func (c *CameraConfig) UseSnapshot() bool {
	return c.SnapshotURL != ""
}

type EnrollmentConfig struct {
	AutoCheckInDelay time.Duration // delay between successful enrollment and automatic check-in (default 1s)
	SessionTTL       time.Duration // abandoned flows are disposed after this (default 15m)
	FrameWidth       int           // ideal capture width (default 640)
	FrameHeight      int           // ideal capture height (default 480)
	JPEGQuality      int           // still image quality 1-100 (default 80)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	KioskToken     string   // bearer token required by the API (optional, open when empty)
	AllowedOrigins []string // extra CORS origins (comma-separated WEB_ALLOWED_ORIGINS)
}

type VisitorTypesConfig struct {
	Types []VisitorType `yaml:"types"`
}

type VisitorType struct {
	Key         string `yaml:"key" json:"key"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("1s", "15m").
// Returns the default value if the env var is unset, empty, invalid, or not positive.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var types VisitorTypesConfig
	if err := yaml.Unmarshal(visitorTypesYAML, &types); err != nil {
		// Embedded file, a parse error is a build problem.
		panic("failed to unmarshal embedded visitor_types.yaml: " + err.Error())
	}

	return &Config{
		FaceService: FaceServiceConfig{
			URL:        strings.TrimSuffix(os.Getenv("FACE_SERVICE_URL"), "/"),
			Timeout:    envDuration("FACE_SERVICE_TIMEOUT", 30*time.Second),
			CaptureDir: os.Getenv("FACE_SERVICE_CAPTURE_DIR"),
		},
		Camera: CameraConfig{
			SnapshotURL: os.Getenv("CAMERA_SNAPSHOT_URL"),
			Username:    os.Getenv("CAMERA_USERNAME"),
			Password:    os.Getenv("CAMERA_PASSWORD"),
		},
		Enrollment: EnrollmentConfig{
			AutoCheckInDelay: envDuration("ENROLLMENT_AUTO_CHECKIN_DELAY", time.Second),
			SessionTTL:       envDuration("ENROLLMENT_SESSION_TTL", 15*time.Minute),
			FrameWidth:       envInt("ENROLLMENT_FRAME_WIDTH", 640),
			FrameHeight:      envInt("ENROLLMENT_FRAME_HEIGHT", 480),
			JPEGQuality:      min(envInt("ENROLLMENT_JPEG_QUALITY", 80), 100),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			KioskToken:     os.Getenv("WEB_KIOSK_TOKEN"),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
		},
		VisitorTypes: types,
	}
}

// IsKnownVisitorType reports whether key is listed in the visitor type catalog.
// Surrounding whitespace is ignored. An empty key is accepted, it falls back to
// the default type downstream.
func (c *Config) IsKnownVisitorType(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}
	for _, t := range c.VisitorTypes.Types {
		if t.Key == key {
			return true
		}
	}
	return false
}
