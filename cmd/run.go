package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/camera"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/device"
	"github.com/kozaktomas/attendance-kiosk/internal/directory"
	"github.com/kozaktomas/attendance-kiosk/internal/heartbeat"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
	"github.com/kozaktomas/attendance-kiosk/internal/match"
	"github.com/kozaktomas/attendance-kiosk/internal/queue"
	"github.com/kozaktomas/attendance-kiosk/internal/vision"
	"github.com/kozaktomas/attendance-kiosk/internal/web"
	"github.com/kozaktomas/attendance-kiosk/internal/web/handlers"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the kiosk runtime",
	Long: `Start the kiosk runtime: camera sampling, face recognition, attendance
decisions, offline delivery, heartbeat, and the local status API.`,
	RunE: runKiosk,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// queueFile is the offline queue file under the state directory.
const queueFile = "queue.gob"

// templateCacheFile is the template snapshot under the state directory.
const templateCacheFile = "templates.gob"

// newCameraSource picks the camera implementation from config.
func newCameraSource(cfg config.CameraConfig) (camera.Source, error) {
	switch cfg.Source {
	case "dir":
		if cfg.Dir == "" {
			return nil, errors.New("CAMERA_DIR is required for the dir camera source")
		}
		return camera.NewDirSource(cfg.Dir), nil
	case "", "http":
		if cfg.URL == "" {
			return nil, errors.New("CAMERA_URL environment variable is required")
		}
		return camera.NewHTTPSource(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}

func qualityGates(cfg *config.Config) vision.QualityGates {
	q := cfg.Calibration.Quality
	return vision.QualityGates{
		MinFacePx:      q.MinFacePx,
		MinFaceRel:     q.MinFaceRel,
		MaxPoseDegrees: q.MaxPoseDegrees,
		MinLuminance:   q.MinLuminance,
		MaxLuminance:   q.MaxLuminance,
		MinDetScore:    q.MinDetScore,
	}
}

// loadTemplates fills the store from the directory, refreshing the local
// snapshot. When the directory is unreachable the previous snapshot keeps
// the kiosk recognizing.
func loadTemplates(ctx context.Context, cfg *config.Config, store *match.TemplateStore) error {
	cachePath := filepath.Join(cfg.StateDir, templateCacheFile)

	pool, err := directory.NewPool(&cfg.Directory)
	if err != nil {
		fmt.Printf("Warning: enrollment directory unavailable, using cached templates: %v\n", err)
		snapshot, cacheErr := match.LoadCache(cachePath)
		if cacheErr != nil {
			return fmt.Errorf("no templates available: %w", cacheErr)
		}
		store.Reload(snapshot.Employees, snapshot.Descriptors)
		return nil
	}
	defer pool.Close()

	employees, err := directory.NewEmployeeRepository(pool).ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load employees: %w", err)
	}
	descriptors, err := directory.NewTemplateRepository(pool).ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	store.Reload(employees, descriptors)
	if err := match.SaveCache(cachePath, match.CacheSnapshot{Employees: employees, Descriptors: descriptors}); err != nil {
		fmt.Printf("Warning: failed to refresh template cache: %v\n", err)
	}
	return nil
}

func runKiosk(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	cred, err := device.Load(cfg.StateDir)
	if err != nil {
		return err
	}
	if cfg.Kiosk.LocationID == "" {
		cfg.Kiosk.LocationID = cred.LocationID
	}
	if cfg.Kiosk.LocationID == "" {
		return errors.New("KIOSK_LOCATION_ID environment variable is required")
	}

	if cfg.Ledger.URL == "" {
		return errors.New("LEDGER_URL environment variable is required")
	}
	client, err := ledger.New(cfg.Ledger.URL, cfg.Ledger.Token, cfg.Ledger.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}

	source, err := newCameraSource(cfg.Camera)
	if err != nil {
		return err
	}

	extractor := vision.NewExtractor(cfg.Extractor.URL, cfg.Extractor.Dim)

	store := match.NewTemplateStore()
	if err := loadTemplates(context.Background(), cfg, store); err != nil {
		return err
	}
	fmt.Printf("Template store ready with %d descriptors\n", store.Count())

	matcher := match.NewMatcher(
		store,
		cfg.Calibration.Matcher.DistanceThreshold,
		cfg.Calibration.Matcher.AmbiguityEpsilon,
	)

	storage := queue.NewFileStorage(filepath.Join(cfg.StateDir, queueFile))
	q, err := queue.New(storage, queue.NewLedgerSender(client), queue.Options{
		MaxAttempts:   cfg.Queue.MaxAttempts,
		BackoffBase:   cfg.Queue.BackoffBase,
		BackoffCap:    cfg.Queue.BackoffCap,
		DrainInterval: cfg.Queue.DrainInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to open offline queue: %w", err)
	}
	if depth := q.Depth(); depth > 0 {
		fmt.Printf("Offline queue holds %d undelivered events\n", depth)
	}

	runtime := kiosk.NewRuntime(
		source, extractor, matcher, client, q,
		kiosk.LogAnnouncer{}, &kiosk.EventBroadcaster{},
		cfg.Kiosk, qualityGates(cfg), cred.DeviceID,
	)

	reporter := heartbeat.New(
		client, cred.DeviceID, Version, cfg.Heartbeat.Interval,
		runtime.CameraHealthy, q.Depth, q.SetOnline,
	)

	server := web.NewServer(cfg.Web, runtime, q, client, handlers.DeviceInfo{
		DeviceID:   cred.DeviceID,
		LocationID: cfg.Kiosk.LocationID,
		Version:    Version,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	go q.Run(ctx)
	go reporter.Run(ctx)
	go func() {
		if err := server.Start(); err != nil {
			fmt.Printf("Status API failed: %v\n", err)
		}
	}()

	fmt.Printf("Kiosk %s running at location %s\n", cred.DeviceID, cfg.Kiosk.LocationID)
	fmt.Println("Press Ctrl+C to stop")

	if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("kiosk runtime failed: %w", err)
	}
	return nil
}
