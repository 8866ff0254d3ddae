package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/visitor-desk/internal/camera"
	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/database/postgres"
	"github.com/kozaktomas/visitor-desk/internal/desk"
	"github.com/kozaktomas/visitor-desk/internal/enrollment"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a visitor from a photo file",
	Long: `Run the enrollment flow for one visitor using a photo file as the camera.
Consent is given on the visitor's behalf. On success the visitor is
registered and, after the configured delay, checked in.

Examples:
  visitor-desk enroll --image jana.jpg --name "Jana Novakova" --company Acme --visiting "Petr"
  visitor-desk enroll --image contractor.png --type contractor --no-checkin`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("image", "", "Photo of the visitor's face (JPEG, PNG, GIF or BMP)")
	enrollCmd.Flags().String("name", "", "Visitor name")
	enrollCmd.Flags().String("company", "", "Visitor company")
	enrollCmd.Flags().String("visiting", "", "Person being visited")
	enrollCmd.Flags().String("type", "", "Visitor type (see visitor_types.yaml)")
	enrollCmd.Flags().Bool("no-checkin", false, "Register the face without checking the visitor in")
	enrollCmd.Flags().Duration("timeout", time.Minute, "Maximum time for the whole enrollment")
	enrollCmd.Flags().Bool("json", false, "Output the final session as JSON")
	_ = enrollCmd.MarkFlagRequired("image")
}

// stillEnrollment describes one enrollment driven by an image file.
type stillEnrollment struct {
	Image   string
	Visitor *visitor.Info
	CheckIn bool
}

// enrollStill runs a full flow against a still camera: auto-consent, camera
// acquisition, capture and, when requested, the automatic check-in.
func enrollStill(ctx context.Context, d *desk.Desk, opts enrollment.Options, job stillEnrollment) (enrollment.Session, error) {
	opts.Camera = camera.NewStill(job.Image)
	opts.Visitor = job.Visitor

	flow, err := enrollment.NewFlow(opts)
	if err != nil {
		return enrollment.Session{}, err
	}
	defer flow.Dispose()
	defer d.Forget(flow.ID())

	checkedIn := make(chan struct{})
	hooks := d.Hooks(flow)
	deskCheckIn := hooks.OnAutoCheckIn
	hooks.OnAutoCheckIn = func() {
		defer close(checkedIn)
		if job.CheckIn {
			deskCheckIn()
		}
	}
	flow.SetHooks(hooks)

	events := flow.Subscribe()
	defer flow.Unsubscribe(events)

	if err := flow.SetConsent(true); err != nil {
		return flow.Snapshot(), err
	}
	if err := flow.Continue(); err != nil {
		return flow.Snapshot(), err
	}

	if err := waitForCamera(ctx, flow, events); err != nil {
		return flow.Snapshot(), err
	}

	if err := flow.CaptureFrame(ctx); err != nil {
		return flow.Snapshot(), err
	}

	if job.CheckIn {
		select {
		case <-checkedIn:
		case <-ctx.Done():
			return flow.Snapshot(), fmt.Errorf("waiting for check-in: %w", ctx.Err())
		}
	}
	return flow.Snapshot(), nil
}

// waitForCamera blocks until the flow can capture or the camera was denied.
func waitForCamera(ctx context.Context, flow *enrollment.Flow, events chan enrollment.Event) error {
	for {
		session := flow.Snapshot()
		if session.CanCapture {
			return nil
		}
		if session.Permission == enrollment.PermissionDenied {
			if n := session.LastNotice(); n != nil {
				return fmt.Errorf("%w: %s", enrollment.ErrPermissionDenied, n.Message)
			}
			return enrollment.ErrPermissionDenied
		}

		select {
		case _, ok := <-events:
			if !ok {
				return enrollment.ErrClosed
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for camera: %w", ctx.Err())
		}
	}
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	imagePath := mustGetString(cmd, "image")
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}

	info := &visitor.Info{
		Name:        mustGetString(cmd, "name"),
		Company:     mustGetString(cmd, "company"),
		Visiting:    mustGetString(cmd, "visiting"),
		VisitorType: mustGetString(cmd, "type"),
	}
	if !cfg.IsKnownVisitorType(info.VisitorType) {
		return fmt.Errorf("unknown visitor type %q", info.VisitorType)
	}

	d, err := connectDesk(cfg)
	if err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	client, err := newFaceClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), mustGetDuration(cmd, "timeout"))
	defer cancel()

	jsonOutput := mustGetBool(cmd, "json")
	if !jsonOutput {
		fmt.Printf("Enrolling %s from %s...\n", visitor.WithDefaults(info).Name, imagePath)
	}

	session, err := enrollStill(ctx, d, flowOptions(cfg, client, nil), stillEnrollment{
		Image:   imagePath,
		Visitor: info,
		CheckIn: !mustGetBool(cmd, "no-checkin"),
	})

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(session); encErr != nil {
			return encErr
		}
		return err
	}

	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrServiceRejected):
			return fmt.Errorf("face service rejected the photo: %w", err)
		case errors.Is(err, enrollment.ErrTransport):
			return fmt.Errorf("face service unreachable: %w", err)
		}
		return err
	}

	fmt.Printf("Face registered: %s\n", session.EnrollmentID)
	if session.CheckedIn {
		fmt.Printf("Visitor checked in\n")
	}
	return nil
}
