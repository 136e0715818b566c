// Package device stores the kiosk's registered identity on local disk.
package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// credentialFile is the file name under the state directory.
const credentialFile = "device.json"

// Credential is the identity issued by the ledger at registration time.
type Credential struct {
	DeviceID     string    `json:"device_id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"` // pairing code the registration used
	LocationID   string    `json:"location_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Path returns the credential file path under the state directory.
func Path(stateDir string) string {
	return filepath.Join(stateDir, credentialFile)
}

// Save persists the credential. The file is written with owner-only
// permissions; it identifies this device to the ledger.
func Save(stateDir string, cred Credential) error {
	if cred.DeviceID == "" {
		return fmt.Errorf("refusing to save credential without a device ID")
	}

	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	path := Path(stateDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace credential: %w", err)
	}
	return nil
}

// Load reads the credential saved by a previous registration.
func Load(stateDir string) (Credential, error) {
	var cred Credential

	data, err := os.ReadFile(Path(stateDir)) //nolint:gosec // path is from trusted config
	if err != nil {
		return cred, fmt.Errorf("failed to read device credential (run 'attendance-kiosk register' first): %w", err)
	}

	if err := json.Unmarshal(data, &cred); err != nil {
		return cred, fmt.Errorf("failed to decode device credential: %w", err)
	}
	if cred.DeviceID == "" {
		return cred, fmt.Errorf("device credential is missing a device ID")
	}
	return cred, nil
}
