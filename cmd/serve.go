package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/visitor-desk/internal/camera"
	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/database/postgres"
	"github.com/kozaktomas/visitor-desk/internal/desk"
	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/facesvc"
	"github.com/kozaktomas/visitor-desk/internal/metrics"
	"github.com/kozaktomas/visitor-desk/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk web server",
	Long: `Start the Visitor Desk web server.
The server hosts the kiosk page, drives enrollment flows and records
registered visitors and their check-ins in PostgreSQL.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// newFaceClient creates the face recognition service client from configuration.
func newFaceClient(cfg *config.Config) (*facesvc.Client, error) {
	if cfg.FaceService.URL == "" {
		return nil, errors.New("FACE_SERVICE_URL environment variable is required")
	}
	client, err := facesvc.NewClient(cfg.FaceService.URL, cfg.FaceService.Timeout)
	if err != nil {
		return nil, err
	}

	dir := captureDir
	if dir == "" {
		dir = cfg.FaceService.CaptureDir
	}
	if err := client.SetCaptureDir(dir); err != nil {
		return nil, err
	}
	return client, nil
}

// connectDatabase opens the PostgreSQL pool, applies migrations and registers
// the repositories.
func connectDatabase(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(context.Background(), &cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return nil
}

// connectDesk connects to PostgreSQL and returns a desk backed by it.
func connectDesk(cfg *config.Config) (*desk.Desk, error) {
	if err := connectDatabase(cfg); err != nil {
		return nil, err
	}
	return desk.FromBackend(context.Background())
}

// flowOptions returns the per-flow options shared by the server and CLI enrollment.
func flowOptions(cfg *config.Config, service enrollment.Enroller, recorder enrollment.Recorder) enrollment.Options {
	return enrollment.Options{
		Service:  service,
		Recorder: recorder,
		Constraints: enrollment.Constraints{
			Width:      cfg.Enrollment.FrameWidth,
			Height:     cfg.Enrollment.FrameHeight,
			FacingMode: enrollment.FacingUser,
		},
		AutoCheckInDelay: cfg.Enrollment.AutoCheckInDelay,
		JPEGQuality:      cfg.Enrollment.JPEGQuality,
	}
}

// newCameraFactory picks the fixed snapshot camera when configured, otherwise the
// visitor's browser camera.
func newCameraFactory(cfg *config.Config) func(flowID string) enrollment.Camera {
	if cfg.Camera.UseSnapshot() {
		snapshot := camera.NewSnapshot(cfg.Camera.SnapshotURL, cfg.Camera.Username, cfg.Camera.Password)
		fmt.Printf("Using snapshot camera at %s\n", cfg.Camera.SnapshotURL)
		return func(string) enrollment.Camera { return snapshot }
	}
	fmt.Printf("Using browser camera\n")
	return func(string) enrollment.Camera { return camera.NewBridge() }
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	d, err := connectDesk(cfg)
	if err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	client, err := newFaceClient(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)
	d.SetRecorder(recorder)

	manager := enrollment.NewManager(enrollment.ManagerConfig{
		Base:      flowOptions(cfg, client, recorder),
		NewCamera: newCameraFactory(cfg),
		NewHooks:  d.Hooks,
		TTL:       cfg.Enrollment.SessionTTL,
	})

	port, host := resolveServeHostPort(cmd)
	if cfg.Web.KioskToken == "" {
		fmt.Printf("Warning: WEB_KIOSK_TOKEN is not set, the API is open to anyone who can reach it\n")
	}

	server := web.NewServer(cfg, port, host, manager, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Visitor Desk kiosk on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
