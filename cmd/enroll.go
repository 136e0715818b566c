package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/device"
	"github.com/kozaktomas/attendance-kiosk/internal/directory"
	"github.com/kozaktomas/attendance-kiosk/internal/enroll"
	"github.com/kozaktomas/attendance-kiosk/internal/vision"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll an employee's face on this kiosk",
	Long: `Run the operator-driven enrollment workflow: three quality-gated pose
captures (front, left, right) are extracted and installed atomically as the
employee's face templates. Re-enrolling replaces the previous templates.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("employee", "", "Employee badge code to enroll (required)")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	code := mustGetString(cmd, "employee")
	if code == "" {
		return errors.New("--employee is required")
	}

	cred, err := device.Load(cfg.StateDir)
	if err != nil {
		return err
	}

	pool, err := directory.NewPool(&cfg.Directory)
	if err != nil {
		return fmt.Errorf("failed to connect to the enrollment directory: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()

	emp, err := directory.NewEmployeeRepository(pool).GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if !emp.Active {
		return fmt.Errorf("employee %s is not active", emp.Code)
	}
	if emp.FaceRegistered {
		counts, err := directory.NewTemplateRepository(pool).CountByEmployee(ctx)
		if err != nil {
			return fmt.Errorf("failed to count existing templates: %w", err)
		}
		fmt.Printf("Employee %s already has %d face templates, they will be replaced\n", emp.Code, counts[emp.ID])
	}

	source, err := newCameraSource(cfg.Camera)
	if err != nil {
		return err
	}
	if err := source.Open(); err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer source.Close()

	extractor := vision.NewExtractor(cfg.Extractor.URL, cfg.Extractor.Dim)
	if err := extractor.Ping(ctx); err != nil {
		return fmt.Errorf("extraction service is not reachable: %w", err)
	}

	workflow := enroll.NewWorkflow(
		source,
		extractor,
		directory.NewTemplateRepository(pool),
		directory.NewAuditRepository(pool),
		nil,
		qualityGates(cfg),
		cred.DeviceID,
		enroll.Options{
			OnPose: func(pose enroll.Pose) {
				fmt.Printf("\nPose %d/3: look %s and hold still\n", pose.Index+1, pose.Name)
			},
			OnRejected: func(pose enroll.Pose, reason string) {
				fmt.Printf("  retrying: %s\n", reason)
			},
			OnAccepted: func(pose enroll.Pose, quality float64) {
				fmt.Printf("  captured (quality %.2f)\n", quality)
			},
		},
	)

	fmt.Printf("Enrolling %s (%s)\n", emp.Name, emp.Code)
	result, err := workflow.Run(ctx, emp)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	fmt.Printf("\nEnrollment %s complete, mean quality %.2f\n", result.EnrollmentID, result.MeanQuality)
	fmt.Println("Run 'attendance-kiosk templates sync' on other kiosks to pick up the new templates")
	return nil
}
