package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed calibration.yaml
var calibrationYAML []byte

type Config struct {
	Ledger      LedgerConfig
	Extractor   ExtractorConfig
	Directory   DirectoryConfig
	Camera      CameraConfig
	Kiosk       KioskConfig
	Queue       QueueConfig
	Heartbeat   HeartbeatConfig
	Web         WebConfig
	Calibration Calibration
	StateDir    string // local state directory (device credential, offline queue)
}

type LedgerConfig struct {
	URL     string // base URL of the attendance ledger service
	Token   string // API token issued for this site
	Timeout time.Duration
}

type ExtractorConfig struct {
	URL string // embedding/detection service base URL (defaults to http://localhost:8000)
	Dim int    // descriptor dimension (defaults to 512)
}

type DirectoryConfig struct {
	URL          string // PostgreSQL connection URL of the enrollment directory
	MaxOpenConns int    // Maximum open connections (default 10)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

type CameraConfig struct {
	Source string // "http" or "dir"
	URL    string // snapshot endpoint for the http source
	Dir    string // frame directory for the dir source (development)
}

type KioskConfig struct {
	LocationID        string        // location this kiosk is installed at
	DetectInterval    time.Duration // camera sampling period
	ConfirmHold       time.Duration // pause in confirming for UI/voice feedback
	Cooldown          time.Duration // per-employee suppression window after a result
	RecognitionWindow time.Duration // max time spent trying to recognize before standby
	IdleRestart       time.Duration // no detections for this long triggers a runtime restart
}

type QueueConfig struct {
	MaxAttempts   int           // delivery attempts before an item is marked failed
	BackoffBase   time.Duration // first retry delay, doubled per attempt
	BackoffCap    time.Duration // upper bound for the retry delay
	DrainInterval time.Duration // how often the drainer wakes up
}

type HeartbeatConfig struct {
	Interval time.Duration
}

type WebConfig struct {
	Host string
	Port int
}

// Calibration holds matcher and quality tuning. Defaults come from the
// embedded calibration.yaml and can be overridden per deployment via env.
type Calibration struct {
	Matcher struct {
		DistanceThreshold float64 `yaml:"distance_threshold"`
		AmbiguityEpsilon  float64 `yaml:"ambiguity_epsilon"`
	} `yaml:"matcher"`
	Quality struct {
		MinFacePx      int     `yaml:"min_face_px"`
		MinFaceRel     float64 `yaml:"min_face_rel"`
		MaxPoseDegrees float64 `yaml:"max_pose_degrees"`
		MinLuminance   float64 `yaml:"min_luminance"`
		MaxLuminance   float64 `yaml:"max_luminance"`
		MinDetScore    float64 `yaml:"min_det_score"`
	} `yaml:"quality"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a time.Duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var cal Calibration
	if err := yaml.Unmarshal(calibrationYAML, &cal); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded calibration.yaml: " + err.Error())
	}

	// Env overrides for the calibration values.
	cal.Matcher.DistanceThreshold = envFloat("MATCH_THRESHOLD", cal.Matcher.DistanceThreshold)
	cal.Matcher.AmbiguityEpsilon = envFloat("MATCH_AMBIGUITY_EPSILON", cal.Matcher.AmbiguityEpsilon)
	cal.Quality.MinFacePx = envInt("QUALITY_MIN_FACE_PX", cal.Quality.MinFacePx)
	cal.Quality.MinDetScore = envFloat("QUALITY_MIN_DET_SCORE", cal.Quality.MinDetScore)

	return &Config{
		Ledger: LedgerConfig{
			URL:     os.Getenv("LEDGER_URL"),
			Token:   os.Getenv("LEDGER_TOKEN"),
			Timeout: envDuration("LEDGER_TIMEOUT", 15*time.Second),
		},
		Extractor: ExtractorConfig{
			URL: envString("EXTRACTOR_URL", "http://localhost:8000"),
			Dim: envInt("EXTRACTOR_DIM", 512),
		},
		Directory: DirectoryConfig{
			URL:          os.Getenv("DIRECTORY_URL"),
			MaxOpenConns: envInt("DIRECTORY_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DIRECTORY_MAX_IDLE_CONNS", 2),
		},
		Camera: CameraConfig{
			Source: envString("CAMERA_SOURCE", "http"),
			URL:    envString("CAMERA_URL", "http://localhost:8090"),
			Dir:    os.Getenv("CAMERA_DIR"),
		},
		Kiosk: KioskConfig{
			LocationID:        os.Getenv("KIOSK_LOCATION_ID"),
			DetectInterval:    envDuration("KIOSK_DETECT_INTERVAL", 700*time.Millisecond),
			ConfirmHold:       envDuration("KIOSK_CONFIRM_HOLD", 1200*time.Millisecond),
			Cooldown:          envDuration("KIOSK_COOLDOWN", 30*time.Second),
			RecognitionWindow: envDuration("KIOSK_RECOGNITION_WINDOW", 8*time.Second),
			IdleRestart:       envDuration("KIOSK_IDLE_RESTART", 5*time.Minute),
		},
		Queue: QueueConfig{
			MaxAttempts:   envInt("QUEUE_MAX_ATTEMPTS", 10),
			BackoffBase:   envDuration("QUEUE_BACKOFF_BASE", 2*time.Second),
			BackoffCap:    envDuration("QUEUE_BACKOFF_CAP", 5*time.Minute),
			DrainInterval: envDuration("QUEUE_DRAIN_INTERVAL", 3*time.Second),
		},
		Heartbeat: HeartbeatConfig{
			Interval: envDuration("HEARTBEAT_INTERVAL", 60*time.Second),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "127.0.0.1"),
			Port: envInt("WEB_PORT", 8085),
		},
		Calibration: cal,
		StateDir:    envString("KIOSK_STATE_DIR", "/var/lib/attendance-kiosk"),
	}
}
