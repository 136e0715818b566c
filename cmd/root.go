package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendance-kiosk",
	Short: "Face-recognition attendance kiosk engine",
	Long: `Attendance Kiosk is the on-device engine of a face-recognition time
clock. It samples a camera, matches faces against locally enrolled
templates, decides the attendance action, and delivers events to the
attendance ledger with offline buffering.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
