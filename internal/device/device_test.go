package device

import (
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cred := Credential{
		DeviceID:     "device-1",
		Name:         "Entrance kiosk",
		LocationID:   "loc-entrance",
		RegisteredAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := Save(dir, cred); err != nil {
		t.Fatalf("failed to save credential: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("failed to load credential: %v", err)
	}
	if got != cred {
		t.Errorf("loaded credential differs: got %+v, want %+v", got, cred)
	}
}

func TestSaveRejectsEmptyDeviceID(t *testing.T) {
	if err := Save(t.TempDir(), Credential{}); err == nil {
		t.Fatal("expected error for empty device ID")
	}
}

func TestLoadMissingFileMentionsRegister(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing credential")
	}
	if !strings.Contains(err.Error(), "register") {
		t.Errorf("error should point at registration, got: %v", err)
	}
}
