package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/database/postgres"
	"github.com/kozaktomas/visitor-desk/internal/visitor"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk enroll visitors from a YAML manifest",
	Long: `Enroll every visitor listed in a YAML manifest. Image paths are relative
to the manifest file. Visitors are registered but not checked in unless
--checkin is given.

Manifest format:
  visitors:
    - name: Jana Novakova
      company: Acme
      visiting: Petr Svoboda
      type: contractor
      image: photos/jana.jpg`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("manifest", "", "Path to the YAML manifest")
	importCmd.Flags().Int("concurrency", 2, "Number of parallel enrollments")
	importCmd.Flags().Bool("checkin", false, "Check each visitor in after enrollment")
	importCmd.Flags().Duration("timeout", time.Minute, "Maximum time per visitor")
	importCmd.Flags().Bool("dry-run", false, "Validate the manifest without enrolling")
	_ = importCmd.MarkFlagRequired("manifest")
}

// importManifest is the bulk enrollment file
type importManifest struct {
	Visitors []importEntry `yaml:"visitors"`
}

type importEntry struct {
	Name     string `yaml:"name"`
	Company  string `yaml:"company"`
	Visiting string `yaml:"visiting"`
	Type     string `yaml:"type"`
	Image    string `yaml:"image"`
}

// loadImportManifest reads the manifest and resolves image paths against its directory.
func loadImportManifest(path string, cfg *config.Config) (*importManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest importManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(manifest.Visitors) == 0 {
		return nil, fmt.Errorf("manifest %s lists no visitors", path)
	}

	base := filepath.Dir(path)
	for i := range manifest.Visitors {
		entry := &manifest.Visitors[i]
		if entry.Image == "" {
			return nil, fmt.Errorf("visitor #%d (%s): image is required", i+1, entry.Name)
		}
		if !filepath.IsAbs(entry.Image) {
			entry.Image = filepath.Join(base, entry.Image)
		}
		if !cfg.IsKnownVisitorType(entry.Type) {
			return nil, fmt.Errorf("visitor #%d (%s): unknown visitor type %q", i+1, entry.Name, entry.Type)
		}
	}
	return &manifest, nil
}

func (e importEntry) info() *visitor.Info {
	return &visitor.Info{
		Name:        e.Name,
		Company:     e.Company,
		Visiting:    e.Visiting,
		VisitorType: e.Type,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	manifest, err := loadImportManifest(mustGetString(cmd, "manifest"), cfg)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "dry-run") {
		fmt.Printf("Manifest OK: %d visitors\n", len(manifest.Visitors))
		return nil
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

	concurrency := max(mustGetInt(cmd, "concurrency"), 1)
	timeout := mustGetDuration(cmd, "timeout")
	checkIn := mustGetBool(cmd, "checkin")
	opts := flowOptions(cfg, client, nil)

	bar := progressbar.NewOptions(len(manifest.Visitors),
		progressbar.OptionSetDescription("Enrolling visitors"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("visitors"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled int64
	var failures sync.Map
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, entry := range manifest.Visitors {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, entry importEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			defer bar.Add(1)

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			_, err := enrollStill(ctx, d, opts, stillEnrollment{
				Image:   entry.Image,
				Visitor: entry.info(),
				CheckIn: checkIn,
			})
			if err != nil {
				failures.Store(i, fmt.Sprintf("%s (%s): %v", entry.Name, entry.Image, err))
				return
			}
			atomic.AddInt64(&enrolled, 1)
		}(i, entry)
	}

	wg.Wait()
	fmt.Println()

	failed := 0
	for i := range manifest.Visitors {
		if msg, ok := failures.Load(i); ok {
			fmt.Printf("  failed: %s\n", msg)
			failed++
		}
	}

	fmt.Printf("Enrolled %d of %d visitors\n", enrolled, len(manifest.Visitors))
	if failed > 0 {
		return fmt.Errorf("%d visitors failed to enroll", failed)
	}
	return nil
}
