package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/device"
	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this device with the attendance ledger",
	Long: `Register this kiosk with the attendance ledger using a one-time pairing
code issued by an administrator. The device identity is stored locally and
used by every subsequent command.`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Human-readable device name (required)")
	registerCmd.Flags().String("code", "", "One-time pairing code from the ledger (required)")
	registerCmd.Flags().String("identifier", "", "Hardware identifier (defaults to the device name)")
	registerCmd.Flags().String("location", "", "Location ID this kiosk is installed at (required)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	name := mustGetString(cmd, "name")
	code := mustGetString(cmd, "code")
	identifier := mustGetString(cmd, "identifier")
	location := mustGetString(cmd, "location")

	if name == "" || code == "" || location == "" {
		return errors.New("--name, --code and --location are required")
	}
	if identifier == "" {
		identifier = name
	}
	if cfg.Ledger.URL == "" {
		return errors.New("LEDGER_URL environment variable is required")
	}

	client, err := ledger.New(cfg.Ledger.URL, cfg.Ledger.Token, cfg.Ledger.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := client.RegisterDevice(ctx, name, code, identifier, location)
	if err != nil {
		return fmt.Errorf("device registration failed: %w", err)
	}

	cred := device.Credential{
		DeviceID:     result.DeviceID,
		Name:         name,
		Code:         code,
		LocationID:   location,
		RegisteredAt: time.Now().UTC(),
	}
	if err := device.Save(cfg.StateDir, cred); err != nil {
		return fmt.Errorf("registration succeeded but saving the credential failed: %w", err)
	}

	fmt.Printf("Device registered as %s\n", result.DeviceID)
	fmt.Printf("Credential stored in %s\n", device.Path(cfg.StateDir))
	return nil
}
