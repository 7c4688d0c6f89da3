package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Boundary    BoundaryConfig    `yaml:"boundary" mapstructure:"boundary"`
	Evidence    EvidenceConfig    `yaml:"evidence" mapstructure:"evidence"`
	Match       MatchConfig       `yaml:"match" mapstructure:"match"`
	Arbitration ArbitrationConfig `yaml:"arbitration" mapstructure:"arbitration"`
	Sync        SyncConfig        `yaml:"sync" mapstructure:"sync"`
	Strava      StravaConfig      `yaml:"strava" mapstructure:"strava"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP sync server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnthropicConfig holds Anthropic API settings used by arbitration.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// RegionConfig is a named bounding box used for discovery imports.
type RegionConfig struct {
	Name  string  `yaml:"name" mapstructure:"name"`
	South float64 `yaml:"south" mapstructure:"south"`
	West  float64 `yaml:"west" mapstructure:"west"`
	North float64 `yaml:"north" mapstructure:"north"`
	East  float64 `yaml:"east" mapstructure:"east"`
}

// BoundaryConfig configures the boundary candidate fetcher.
type BoundaryConfig struct {
	OverpassURL    string         `yaml:"overpass_url" mapstructure:"overpass_url"`
	UserAgent      string         `yaml:"user_agent" mapstructure:"user_agent"`
	RadiusMeters   float64        `yaml:"radius_meters" mapstructure:"radius_meters"`
	TimeoutSecs    int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries        int            `yaml:"retries" mapstructure:"retries"`
	RetryDelaySecs int            `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	MinAreaM2      float64        `yaml:"min_area_m2" mapstructure:"min_area_m2"`
	MaxAreaM2      float64        `yaml:"max_area_m2" mapstructure:"max_area_m2"`
	CachePath      string         `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours  int            `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	Shapefile      string         `yaml:"shapefile" mapstructure:"shapefile"`
	ShapefileName  string         `yaml:"shapefile_name_field" mapstructure:"shapefile_name_field"`
	RegionsFile    string         `yaml:"regions_file" mapstructure:"regions_file"`
	Regions        []RegionConfig `yaml:"regions" mapstructure:"regions"`
}

// CacheTTL returns how long cached Overpass responses stay valid.
func (b BoundaryConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTTLHours) * time.Hour
}

// Timeout returns the per-request timeout.
func (b BoundaryConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// RetryDelay returns the fixed delay between retries.
func (b BoundaryConfig) RetryDelay() time.Duration {
	return time.Duration(b.RetryDelaySecs) * time.Second
}

// EvidenceConfig configures the alternate evidence source.
type EvidenceConfig struct {
	SPARQLURL    string  `yaml:"sparql_url" mapstructure:"sparql_url"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	RadiusMeters float64 `yaml:"radius_meters" mapstructure:"radius_meters"`
	MinScore     float64 `yaml:"min_score" mapstructure:"min_score"`
	DelaySecs    int     `yaml:"delay_secs" mapstructure:"delay_secs"`
}

// MatchConfig configures boundary matching and discovery.
type MatchConfig struct {
	NameThreshold     float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	NearNameThreshold float64 `yaml:"near_name_threshold" mapstructure:"near_name_threshold"`
	NearMeters        float64 `yaml:"near_meters" mapstructure:"near_meters"`
	Alternatives      int     `yaml:"alternatives" mapstructure:"alternatives"`
	DelaySecs         int     `yaml:"delay_secs" mapstructure:"delay_secs"`
	DuplicateOverlap  float64 `yaml:"duplicate_overlap" mapstructure:"duplicate_overlap"`
	DuplicateMeters   float64 `yaml:"duplicate_meters" mapstructure:"duplicate_meters"`
}

// ArbitrationConfig configures AI arbitration of ambiguous matches.
type ArbitrationConfig struct {
	ConfirmThreshold     int `yaml:"confirm_threshold" mapstructure:"confirm_threshold"`
	AlternativeThreshold int `yaml:"alternative_threshold" mapstructure:"alternative_threshold"`
	RejectThreshold      int `yaml:"reject_threshold" mapstructure:"reject_threshold"`
	MaxAlternatives      int `yaml:"max_alternatives" mapstructure:"max_alternatives"`
	DelaySecs            int `yaml:"delay_secs" mapstructure:"delay_secs"`
}

// SyncConfig configures route intersection.
type SyncConfig struct {
	MaxSites        int     `yaml:"max_sites" mapstructure:"max_sites"`
	MaxRoutes       int     `yaml:"max_routes" mapstructure:"max_routes"`
	ProximityMeters float64 `yaml:"proximity_meters" mapstructure:"proximity_meters"`
	DensifyMeters   float64 `yaml:"densify_meters" mapstructure:"densify_meters"`
}

// StravaConfig holds Strava OAuth application settings.
type StravaConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	OAuthURL     string `yaml:"oauth_url" mapstructure:"oauth_url"`
	AthleteID    int64  `yaml:"athlete_id" mapstructure:"athlete_id"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARKTRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("boundary.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("boundary.user_agent", "parktrail/1.0")
	v.SetDefault("boundary.radius_meters", 500.0)
	v.SetDefault("boundary.timeout_secs", 60)
	v.SetDefault("boundary.retries", 2)
	v.SetDefault("boundary.retry_delay_secs", 5)
	v.SetDefault("boundary.min_area_m2", 0.0)
	v.SetDefault("boundary.max_area_m2", 0.0)
	v.SetDefault("boundary.cache_path", "")
	v.SetDefault("boundary.cache_ttl_hours", 168)
	v.SetDefault("boundary.shapefile", "")
	v.SetDefault("boundary.shapefile_name_field", "NAME")
	v.SetDefault("boundary.regions_file", "")
	v.SetDefault("evidence.sparql_url", "https://query.wikidata.org/sparql")
	v.SetDefault("evidence.user_agent", "parktrail/1.0")
	v.SetDefault("evidence.radius_meters", 500.0)
	v.SetDefault("evidence.min_score", 0.5)
	v.SetDefault("evidence.delay_secs", 2)
	v.SetDefault("match.name_threshold", 0.7)
	v.SetDefault("match.near_name_threshold", 0.5)
	v.SetDefault("match.near_meters", 200.0)
	v.SetDefault("match.alternatives", 4)
	v.SetDefault("match.delay_secs", 2)
	v.SetDefault("match.duplicate_overlap", 0.5)
	v.SetDefault("match.duplicate_meters", 100.0)
	v.SetDefault("arbitration.confirm_threshold", 85)
	v.SetDefault("arbitration.alternative_threshold", 85)
	v.SetDefault("arbitration.reject_threshold", 90)
	v.SetDefault("arbitration.max_alternatives", 5)
	v.SetDefault("arbitration.delay_secs", 10)
	v.SetDefault("sync.max_sites", 500)
	v.SetDefault("sync.max_routes", 50)
	v.SetDefault("sync.proximity_meters", 100.0)
	v.SetDefault("sync.densify_meters", 0.0)
	v.SetDefault("strava.client_id", "")
	v.SetDefault("strava.client_secret", "")
	v.SetDefault("strava.base_url", "https://www.strava.com/api/v3")
	v.SetDefault("strava.oauth_url", "https://www.strava.com/oauth")
	v.SetDefault("strava.athlete_id", 0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present. mode names
// the command: migrate, match, discover, verify, arbitrate, status, sync,
// strava, or serve.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, key string) {
		if !ok {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case "migrate", "match", "discover", "verify", "status", "sync":
		require(c.Store.DatabaseURL != "", "store.database_url")
	case "arbitrate":
		require(c.Store.DatabaseURL != "", "store.database_url")
		require(c.Anthropic.Key != "", "anthropic.key")
	case "strava":
		require(c.Store.DatabaseURL != "", "store.database_url")
		require(c.Strava.ClientID != "", "strava.client_id")
		require(c.Strava.ClientSecret != "", "strava.client_secret")
	case "serve":
		require(c.Store.DatabaseURL != "", "store.database_url")
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	for _, th := range []struct {
		key string
		val int
	}{
		{"arbitration.confirm_threshold", c.Arbitration.ConfirmThreshold},
		{"arbitration.alternative_threshold", c.Arbitration.AlternativeThreshold},
		{"arbitration.reject_threshold", c.Arbitration.RejectThreshold},
	} {
		if th.val < 0 || th.val > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", th.key))
		}
	}
	if c.Match.NameThreshold < 0 || c.Match.NameThreshold > 1 {
		errs = append(errs, "match.name_threshold must be between 0 and 1")
	}
	if c.Sync.MaxSites < 0 || c.Sync.MaxRoutes < 0 {
		errs = append(errs, "sync.max_sites and sync.max_routes must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
