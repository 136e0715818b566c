package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/directory"
	"github.com/kozaktomas/attendance-kiosk/internal/match"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage the local face template cache",
}

var templatesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local template cache from the enrollment directory",
	Long: `Pull the active employees and their face templates from the enrollment
directory and write the local snapshot the kiosk falls back to when the
directory is unreachable at startup.`,
	RunE: runTemplatesSync,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesSyncCmd)
}

func runTemplatesSync(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	pool, err := directory.NewPool(&cfg.Directory)
	if err != nil {
		return fmt.Errorf("failed to connect to the enrollment directory: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()

	employees, err := directory.NewEmployeeRepository(pool).ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load employees: %w", err)
	}

	fmt.Printf("Found %d active employees\n", len(employees))

	bar := progressbar.NewOptions(len(employees),
		progressbar.OptionSetDescription("Syncing templates"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("employees"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	templates := directory.NewTemplateRepository(pool)

	var descriptors []match.Descriptor
	registered := 0
	for _, emp := range employees {
		descs, err := templates.ListByEmployee(ctx, emp.ID)
		if err != nil {
			return fmt.Errorf("failed to load templates for %s: %w", emp.Code, err)
		}
		if len(descs) > 0 {
			registered++
		}
		descriptors = append(descriptors, descs...)
		_ = bar.Add(1)
	}
	fmt.Println()

	cachePath := filepath.Join(cfg.StateDir, templateCacheFile)
	snapshot := match.CacheSnapshot{Employees: employees, Descriptors: descriptors}
	if err := match.SaveCache(cachePath, snapshot); err != nil {
		return fmt.Errorf("failed to write template cache: %w", err)
	}

	fmt.Printf("Cached %d descriptors for %d registered employees (%s)\n",
		len(descriptors), registered, cachePath)
	return nil
}
