package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FACE_SERVICE_URL", "")
	t.Setenv("ENROLLMENT_AUTO_CHECKIN_DELAY", "")
	t.Setenv("ENROLLMENT_JPEG_QUALITY", "")

	cfg := Load()

	if cfg.Enrollment.AutoCheckInDelay != time.Second {
		t.Errorf("expected auto check-in delay 1s, got %v", cfg.Enrollment.AutoCheckInDelay)
	}
	if cfg.Enrollment.FrameWidth != 640 || cfg.Enrollment.FrameHeight != 480 {
		t.Errorf("expected 640x480 frame, got %dx%d", cfg.Enrollment.FrameWidth, cfg.Enrollment.FrameHeight)
	}
	if cfg.Enrollment.JPEGQuality != 80 {
		t.Errorf("expected JPEG quality 80, got %d", cfg.Enrollment.JPEGQuality)
	}
	if cfg.FaceService.Timeout != 30*time.Second {
		t.Errorf("expected face service timeout 30s, got %v", cfg.FaceService.Timeout)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_TrimsFaceServiceURL(t *testing.T) {
	t.Setenv("FACE_SERVICE_URL", "http://faces:5000/")

	cfg := Load()

	if cfg.FaceService.URL != "http://faces:5000" {
		t.Errorf("expected trailing slash trimmed, got '%s'", cfg.FaceService.URL)
	}
}

func TestLoad_VisitorTypesEmbedded(t *testing.T) {
	cfg := Load()

	if len(cfg.VisitorTypes.Types) == 0 {
		t.Fatal("expected embedded visitor types")
	}
	if !cfg.IsKnownVisitorType("regular") {
		t.Error("expected 'regular' to be a known visitor type")
	}
}

func TestIsKnownVisitorType(t *testing.T) {
	cfg := &Config{VisitorTypes: VisitorTypesConfig{Types: []VisitorType{{Key: "regular"}, {Key: "vip"}}}}

	tests := []struct {
		key      string
		expected bool
	}{
		{"regular", true},
		{"vip", true},
		{"", true},
		{"   ", true},
		{" vip ", true},
		{"janitor", false},
		{"VIP", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := cfg.IsKnownVisitorType(tt.key); got != tt.expected {
				t.Errorf("IsKnownVisitorType(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{"unset", "", 7},
		{"valid", "12", 12},
		{"zero", "0", 7},
		{"negative", "-3", 7},
		{"garbage", "abc", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VISITOR_DESK_TEST_INT", tt.value)
			if got := envInt("VISITOR_DESK_TEST_INT", 7); got != tt.expected {
				t.Errorf("envInt() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"unset", "", time.Minute},
		{"valid", "250ms", 250 * time.Millisecond},
		{"zero", "0s", time.Minute},
		{"bare number", "5", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VISITOR_DESK_TEST_DURATION", tt.value)
			if got := envDuration("VISITOR_DESK_TEST_DURATION", time.Minute); got != tt.expected {
				t.Errorf("envDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCameraConfig_UseSnapshot(t *testing.T) {
	if (&CameraConfig{}).UseSnapshot() {
		t.Error("expected browser camera when no snapshot URL is set")
	}
	if !(&CameraConfig{SnapshotURL: "http://cam/snap.jpg"}).UseSnapshot() {
		t.Error("expected snapshot camera when URL is set")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example.com, ,https://b.example.com ")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Errorf("unexpected origins %v", got)
	}
	if splitList("") != nil {
		t.Error("expected nil for empty value")
	}
}
