package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
)

// TimestampLayout is the ISO-8601 form used for every persisted timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Config holds all environment-driven settings.
type Config struct {
	HTTPPort          string
	DataDir           string
	CallLogPath       string
	RecordingsDir     string
	LocationCachePath string
	DBPath            string
	StaticDir         string
	ReconcileCallLog  bool
	EnableWatcher     bool
	StrictConfig      bool
	Geocoder          GeocoderConfig
	Notify            NotifyConfig
}

// NotifyConfig configures the optional GroupMe dispatch alert.
type NotifyConfig struct {
	GroupMeBotID string
	GroupMeURL   string
}

// GeocoderConfig configures the reverse-geocoding client and its cache.
type GeocoderConfig struct {
	BaseURL        string
	UserAgent      string
	TimeoutSec     int
	RequestsPerSec float64
	CacheCapacity  int
	CacheRadiusKm  float64
}

// Timeout returns the per-lookup budget.
func (g GeocoderConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSec) * time.Second
}

type fileConfig struct {
	HTTPPort          string             `json:"http_port" yaml:"http_port"`
	DataDir           string             `json:"data_dir" yaml:"data_dir"`
	CallLogPath       string             `json:"call_log_path" yaml:"call_log_path"`
	RecordingsDir     string             `json:"recordings_dir" yaml:"recordings_dir"`
	LocationCachePath string             `json:"location_cache_path" yaml:"location_cache_path"`
	DBPath            string             `json:"db_path" yaml:"db_path"`
	StaticDir         string             `json:"static_dir" yaml:"static_dir"`
	ReconcileCallLog  *bool              `json:"reconcile_call_log" yaml:"reconcile_call_log"`
	EnableWatcher     *bool              `json:"enable_watcher" yaml:"enable_watcher"`
	Geocoder          geocoderFileConfig `json:"geocoder" yaml:"geocoder"`
	GroupMeBotID      string             `json:"groupme_bot_id" yaml:"groupme_bot_id"`
	GroupMeURL        string             `json:"groupme_url" yaml:"groupme_url"`
}

type geocoderFileConfig struct {
	BaseURL        string   `json:"base_url" yaml:"base_url"`
	UserAgent      string   `json:"user_agent" yaml:"user_agent"`
	TimeoutSec     *int     `json:"timeout_sec" yaml:"timeout_sec"`
	RequestsPerSec *float64 `json:"requests_per_sec" yaml:"requests_per_sec"`
	CacheCapacity  *int     `json:"cache_capacity" yaml:"cache_capacity"`
	CacheRadiusKm  *float64 `json:"cache_radius_km" yaml:"cache_radius_km"`
}

const (
	defaultPort          = ":5000"
	defaultDataDir       = "."
	defaultCallLog       = "emergency_logs.json"
	defaultRecordingsDir = "recordings"
	defaultLocationCache = "location_cache.json"
	defaultDBFile        = "emergency.db"
	defaultStaticDir     = "templates"
	defaultGroupMeURL    = "https://api.groupme.com/v3/bots/post"
)

// DefaultGeocoderConfig returns the Nominatim defaults.
func DefaultGeocoderConfig() GeocoderConfig {
	return GeocoderConfig{
		BaseURL:        "https://nominatim.openstreetmap.org/reverse",
		UserAgent:      "GDGEmergencySystem/1.0",
		TimeoutSec:     5,
		RequestsPerSec: 1,
		CacheCapacity:  100,
		CacheRadiusKm:  0.1,
	}
}

// Load reads configuration from an optional .env file, an optional YAML/JSON
// config file and environment variables, in increasing precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StrictConfig: parseBoolEnv("STRICT_CONFIG"),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil && !errors.Is(fileErr, os.ErrNotExist) {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
	}

	cfg.DataDir = firstNonEmpty(os.Getenv("DATA_DIR"), fileCfg.DataDir, defaultDataDir)
	cfg.CallLogPath = dataPath(cfg.DataDir, firstNonEmpty(os.Getenv("CALL_LOG_PATH"), fileCfg.CallLogPath, defaultCallLog))
	cfg.RecordingsDir = dataPath(cfg.DataDir, firstNonEmpty(os.Getenv("RECORDINGS_DIR"), fileCfg.RecordingsDir, defaultRecordingsDir))
	cfg.LocationCachePath = dataPath(cfg.DataDir, firstNonEmpty(os.Getenv("LOCATION_CACHE_PATH"), fileCfg.LocationCachePath, defaultLocationCache))
	cfg.DBPath = dataPath(cfg.DataDir, firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, defaultDBFile))
	cfg.StaticDir = firstNonEmpty(os.Getenv("STATIC_DIR"), fileCfg.StaticDir, defaultStaticDir)

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if legacyPort := os.Getenv("PORT"); legacyPort != "" && cfg.HTTPPort == defaultPort {
		cfg.HTTPPort = legacyPort
	}
	if !strings.HasPrefix(cfg.HTTPPort, ":") && !strings.Contains(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	cfg.ReconcileCallLog = boolSetting("RECONCILE_CALL_LOG", fileCfg.ReconcileCallLog, false)
	cfg.EnableWatcher = boolSetting("ENABLE_WATCHER", fileCfg.EnableWatcher, true)
	cfg.Notify = NotifyConfig{
		GroupMeBotID: firstNonEmpty(os.Getenv("GROUPME_BOT_ID"), fileCfg.GroupMeBotID),
		GroupMeURL:   firstNonEmpty(os.Getenv("GROUPME_URL"), fileCfg.GroupMeURL, defaultGroupMeURL),
	}

	geo, err := geocoderSettings(fileCfg.Geocoder, cfg.StrictConfig)
	if err != nil {
		return cfg, err
	}
	cfg.Geocoder = geo

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing with defaults)", err)
		def := DefaultGeocoderConfig()
		if cfg.Geocoder.TimeoutSec <= 0 {
			cfg.Geocoder.TimeoutSec = def.TimeoutSec
		}
		if cfg.Geocoder.CacheCapacity <= 0 {
			cfg.Geocoder.CacheCapacity = def.CacheCapacity
		}
		if cfg.Geocoder.CacheRadiusKm <= 0 {
			cfg.Geocoder.CacheRadiusKm = def.CacheRadiusKm
		}
		if cfg.Geocoder.RequestsPerSec < 0 {
			cfg.Geocoder.RequestsPerSec = def.RequestsPerSec
		}
	}

	log.Printf("config: data_dir=%s port=%s call_log=%s recordings=%s cache=%s db=%s", cfg.DataDir, cfg.HTTPPort, cfg.CallLogPath, cfg.RecordingsDir, cfg.LocationCachePath, cfg.DBPath)
	return cfg, nil
}

func geocoderSettings(file geocoderFileConfig, strict bool) (GeocoderConfig, error) {
	g := DefaultGeocoderConfig()
	g.BaseURL = firstNonEmpty(os.Getenv("GEOCODER_URL"), file.BaseURL, g.BaseURL)
	g.UserAgent = firstNonEmpty(os.Getenv("GEOCODER_USER_AGENT"), file.UserAgent, g.UserAgent)
	if file.TimeoutSec != nil {
		g.TimeoutSec = *file.TimeoutSec
	}
	if file.RequestsPerSec != nil {
		g.RequestsPerSec = *file.RequestsPerSec
	}
	if file.CacheCapacity != nil {
		g.CacheCapacity = *file.CacheCapacity
	}
	if file.CacheRadiusKm != nil {
		g.CacheRadiusKm = *file.CacheRadiusKm
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"GEOCODER_TIMEOUT_SEC", &g.TimeoutSec},
		{"LOCATION_CACHE_CAPACITY", &g.CacheCapacity},
	}
	for _, it := range ints {
		v, ok, err := parseIntEnv(it.key)
		if err != nil {
			if strict {
				return g, fmt.Errorf("invalid %s: %w", it.key, err)
			}
			log.Printf("invalid %s: %v (using default)", it.key, err)
			continue
		}
		if ok {
			*it.dst = v
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"GEOCODER_RPS", &g.RequestsPerSec},
		{"LOCATION_CACHE_RADIUS_KM", &g.CacheRadiusKm},
	}
	for _, it := range floats {
		v, ok, err := parseFloatEnv(it.key)
		if err != nil {
			if strict {
				return g, fmt.Errorf("invalid %s: %w", it.key, err)
			}
			log.Printf("invalid %s: %v (using default)", it.key, err)
			continue
		}
		if ok {
			*it.dst = v
		}
	}
	return g, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Geocoder.BaseURL) == "" {
		return errors.New("GEOCODER_URL is required")
	}
	if cfg.Geocoder.TimeoutSec <= 0 {
		return errors.New("geocoder timeout must be positive")
	}
	if cfg.Geocoder.CacheCapacity <= 0 {
		return errors.New("location cache capacity must be positive")
	}
	if cfg.Geocoder.CacheRadiusKm <= 0 {
		return errors.New("location cache radius must be positive")
	}
	if cfg.Geocoder.RequestsPerSec < 0 {
		return errors.New("geocoder rate must not be negative")
	}
	return nil
}

// dataPath anchors relative file names under the data directory.
func dataPath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func boolSetting(key string, file *bool, def bool) bool {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return parseBoolEnv(key)
	}
	if file != nil {
		return *file
	}
	return def
}

func parseIntEnv(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.Atoi(raw)
	return val, true, err
}

func parseFloatEnv(key string) (float64, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	return val, true, err
}

// Now returns the local wall clock; persisted timestamps carry no zone.
func Now() time.Time {
	return time.Now()
}

// Timestamp formats t with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
