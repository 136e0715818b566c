package config

import (
	"testing"
	"time"
)

func TestLoad_CalibrationDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Calibration.Matcher.DistanceThreshold <= 0 {
		t.Errorf("expected positive distance threshold, got %f", cfg.Calibration.Matcher.DistanceThreshold)
	}

	if cfg.Calibration.Matcher.AmbiguityEpsilon <= 0 {
		t.Errorf("expected positive ambiguity epsilon, got %f", cfg.Calibration.Matcher.AmbiguityEpsilon)
	}

	if cfg.Calibration.Matcher.AmbiguityEpsilon >= cfg.Calibration.Matcher.DistanceThreshold {
		t.Errorf("ambiguity epsilon %f should be smaller than threshold %f",
			cfg.Calibration.Matcher.AmbiguityEpsilon, cfg.Calibration.Matcher.DistanceThreshold)
	}

	if cfg.Calibration.Quality.MinFacePx <= 0 {
		t.Errorf("expected positive min face size, got %d", cfg.Calibration.Quality.MinFacePx)
	}

	if cfg.Calibration.Quality.MinLuminance >= cfg.Calibration.Quality.MaxLuminance {
		t.Errorf("luminance range is inverted: [%f, %f]",
			cfg.Calibration.Quality.MinLuminance, cfg.Calibration.Quality.MaxLuminance)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.42")
	t.Setenv("KIOSK_COOLDOWN", "45s")
	t.Setenv("EXTRACTOR_DIM", "768")

	cfg := Load()

	if cfg.Calibration.Matcher.DistanceThreshold != 0.42 {
		t.Errorf("expected threshold 0.42, got %f", cfg.Calibration.Matcher.DistanceThreshold)
	}

	if cfg.Kiosk.Cooldown != 45*time.Second {
		t.Errorf("expected cooldown 45s, got %v", cfg.Kiosk.Cooldown)
	}

	if cfg.Extractor.Dim != 768 {
		t.Errorf("expected dim 768, got %d", cfg.Extractor.Dim)
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "not-a-number")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "-3")

	cfg := Load()

	if cfg.Calibration.Matcher.DistanceThreshold != 0.36 {
		t.Errorf("expected default threshold 0.36, got %f", cfg.Calibration.Matcher.DistanceThreshold)
	}

	if cfg.Queue.MaxAttempts != 10 {
		t.Errorf("expected default max attempts 10, got %d", cfg.Queue.MaxAttempts)
	}
}
