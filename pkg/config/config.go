package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	Admin     AdminConfig     `yaml:"admin"`
	Request   RequestConfig   `yaml:"request"`
	Overpass  OverpassConfig  `yaml:"overpass"`
	Wikidata  WikidataConfig  `yaml:"wikidata"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address        string `yaml:"address"`
	UploadMaxBytes int64  `yaml:"upload_max_bytes"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// CORSConfig holds cross-origin settings for the API.
type CORSConfig struct {
	Origin string `yaml:"origin"`
}

// AdminConfig holds admin-route authentication settings. An empty token
// disables every admin route.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// RequestConfig holds outbound HTTP settings shared by the Overpass and
// Wikidata clients.
type RequestConfig struct {
	Timeout        Duration `yaml:"timeout"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`
}

// OverpassConfig holds upstream tag-store settings. URLs are tried in
// order until one answers.
type OverpassConfig struct {
	URLs []string `yaml:"urls"`
}

// WikidataConfig holds enrichment settings.
type WikidataConfig struct {
	APIURL          string   `yaml:"api_url"`
	EnrichEnabled   bool     `yaml:"enrich_enabled"`
	MaxIDsPerCenter int      `yaml:"max_ids_per_center"`
	StaleDays       int      `yaml:"stale_days"`
	Throttle        Duration `yaml:"throttle"`
}

// RefreshConfig holds the refresh pipeline settings.
type RefreshConfig struct {
	DefaultRadius      Distance `yaml:"default_radius"`
	BatchCentersPerRun int      `yaml:"batch_centers_per_run"`
	Throttle           Duration `yaml:"throttle"`
	CenterRetryCount   int      `yaml:"center_retry_count"`
	CenterRetryDelay   Duration `yaml:"center_retry_delay"`
	StaleLinkDays      int      `yaml:"stale_link_days"`
	HealthMaxAge       Duration `yaml:"health_max_age"`
	Interval           Duration `yaml:"interval"`
}

// BootstrapConfig holds optional CSV paths imported at startup.
type BootstrapConfig struct {
	CentersCSV   string `yaml:"centers_csv"`
	CompaniesCSV string `yaml:"companies_csv"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "localhost:8787",
			UploadMaxBytes: 5 * 1024 * 1024,
		},
		DB: DBConfig{
			Path: "./data/officeradar.db",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		CORS: CORSConfig{
			Origin: "*",
		},
		Admin: AdminConfig{
			Token: "",
		},
		Request: RequestConfig{
			Timeout:        Duration(30 * time.Second),
			RetryBaseDelay: Duration(400 * time.Millisecond),
		},
		Overpass: OverpassConfig{
			URLs: []string{"https://overpass-api.de/api/interpreter"},
		},
		Wikidata: WikidataConfig{
			APIURL:          "https://www.wikidata.org/w/api.php",
			EnrichEnabled:   true,
			MaxIDsPerCenter: 30,
			StaleDays:       14,
			Throttle:        Duration(250 * time.Millisecond),
		},
		Refresh: RefreshConfig{
			DefaultRadius:      Distance(100000),
			BatchCentersPerRun: 10,
			Throttle:           Duration(1200 * time.Millisecond),
			CenterRetryCount:   3,
			CenterRetryDelay:   Duration(2 * time.Second),
			StaleLinkDays:      30,
			HealthMaxAge:       Duration(130 * time.Minute),
			Interval:           Duration(1 * time.Hour),
		},
		Bootstrap: BootstrapConfig{},
	}
}

// Load loads the configuration from the given path. If the file does not
// exist it is created with default values. A .env file (if present) and
// the process environment override the file: containers configure this
// service purely through env vars.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// .env is optional; absence is not an error.
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

// applyEnv overrides config fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("ADDR"); v != "" {
		c.Server.Address = v
	} else if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DB.Path = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		c.CORS.Origin = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("OVERPASS_URL"); v != "" {
		urls := make([]string, 0, 2)
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			c.Overpass.URLs = urls
		}
	}
	if v := os.Getenv("WIKIDATA_API_URL"); v != "" {
		c.Wikidata.APIURL = v
	}
	if v, ok := envBool("WIKIDATA_ENRICH_ENABLED"); ok {
		c.Wikidata.EnrichEnabled = v
	}
	if v, ok := envInt("WIKIDATA_ENRICH_MAX_IDS_PER_CENTER"); ok {
		c.Wikidata.MaxIDsPerCenter = v
	}
	if v, ok := envInt("WIKIDATA_ENRICH_STALE_DAYS"); ok {
		c.Wikidata.StaleDays = v
	}
	if v, ok := envInt("WIKIDATA_ENRICH_THROTTLE_MS"); ok {
		c.Wikidata.Throttle = Duration(time.Duration(v) * time.Millisecond)
	}
	if v, ok := envInt("DEFAULT_RADIUS_M"); ok {
		c.Refresh.DefaultRadius = Distance(v)
	}
	if v, ok := envInt("BATCH_CENTERS_PER_RUN"); ok {
		c.Refresh.BatchCentersPerRun = v
	}
	if v, ok := envInt("OVERPASS_THROTTLE_MS"); ok {
		c.Refresh.Throttle = Duration(time.Duration(v) * time.Millisecond)
	}
	if v, ok := envInt("REFRESH_CENTER_RETRY_COUNT"); ok {
		c.Refresh.CenterRetryCount = v
	}
	if v, ok := envInt("REFRESH_CENTER_RETRY_DELAY_MS"); ok {
		c.Refresh.CenterRetryDelay = Duration(time.Duration(v) * time.Millisecond)
	}
	if v, ok := envInt("STALE_LINK_DAYS"); ok {
		c.Refresh.StaleLinkDays = v
	}
	if v, ok := envInt("REFRESH_HEALTH_MAX_AGE_MINUTES"); ok {
		c.Refresh.HealthMaxAge = Duration(time.Duration(v) * time.Minute)
	}
	if v := os.Getenv("BOOTSTRAP_CENTERS_CSV"); v != "" {
		c.Bootstrap.CentersCSV = v
	}
	if v := os.Getenv("BOOTSTRAP_COMPANIES_CSV"); v != "" {
		c.Bootstrap.CompaniesCSV = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# OfficeRadar Configuration
# -------------------------
# Every value below can be overridden by environment variables
# (see README). Durations accept ns, us, ms, s, m, h, d, w;
# distances accept m, km, nm.

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
