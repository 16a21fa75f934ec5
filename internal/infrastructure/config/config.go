package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Stage.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Show      ShowConfig      `yaml:"show"`
	Stage     StageConfig     `yaml:"stage"`
	Engine    EngineConfig    `yaml:"engine"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ShowConfig identifies the production this instance runs.
type ShowConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// StageConfig locates the scene manifest and timeline.
type StageConfig struct {
	// Manifest is the YAML scene manifest (nodes, characters, prefabs).
	Manifest string `yaml:"manifest"`

	// Timeline is the YAML timeline object list. Optional.
	Timeline string `yaml:"timeline"`

	// ImportAuthored copies the manifest's props and units into the
	// database on startup, replacing what is stored.
	ImportAuthored bool `yaml:"import_authored"`
}

// EngineConfig tunes resolution and attachment.
type EngineConfig struct {
	// InvertVisibility flips the render flag applied to resolved nodes.
	// Off for all current content.
	InvertVisibility bool `yaml:"invert_visibility"`

	HandFanMarker   string `yaml:"hand_fan_marker"`
	RightHandJoint  string `yaml:"right_hand_joint"`
	CloneSuffix     string `yaml:"clone_suffix"`
	GroupSuffix     string `yaml:"group_suffix"`
	GeneratedPrefix string `yaml:"generated_prefix"`

	// QueueSize is the playback event queue capacity.
	QueueSize int `yaml:"queue_size"`

	// MissLogSize is the number of recent misses kept in memory.
	MissLogSize int `yaml:"miss_log_size"`
}

// MappingConfig adds timeline prop mapping rules.
type MappingConfig struct {
	// DisableDefaults drops the built-in vocal stand and percussion rules.
	DisableDefaults bool          `yaml:"disable_defaults"`
	Rules           []MappingRule `yaml:"rules"`
}

// MappingRule is a marker and the props it drives.
type MappingRule struct {
	Name    string          `yaml:"name"`
	Marker  string          `yaml:"marker"`
	Targets []MappingTarget `yaml:"targets"`
}

// MappingTarget is one prop driven by a rule.
type MappingTarget struct {
	MajorID     int    `yaml:"major_id"`
	PropsName   string `yaml:"props_name"`
	Invert      bool   `yaml:"invert"`
	Description string `yaml:"description"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// MissRetentionDays prunes journaled misses older than this at startup.
	// Zero keeps them forever.
	MissRetentionDays int `yaml:"miss_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig protects the event injection endpoints. An empty secret leaves
// them open, which is only acceptable on an isolated show network.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// minJWTSecretLength is the shortest accepted HMAC secret.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYSTAGE_SECTION_KEY
// For example: GRAYSTAGE_DATABASE_PATH, GRAYSTAGE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Show: ShowConfig{
			ID:   "show-001",
			Name: "Gray Logic Stage",
		},
		Stage: StageConfig{
			Manifest: "./configs/stage.yaml",
		},
		Engine: EngineConfig{
			HandFanMarker:   "fan",
			RightHandJoint:  "Hand_Attach_R",
			CloneSuffix:     "(Clone)",
			GroupSuffix:     "_set",
			GeneratedPrefix: "pf_",
			QueueSize:       1024,
			MissLogSize:     256,
		},
		Database: DatabaseConfig{
			Path:              "./data/graystage.db",
			WALMode:           true,
			BusyTimeout:       5,
			MissRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graystage",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYSTAGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Stage
	if v := os.Getenv("GRAYSTAGE_STAGE_MANIFEST"); v != "" {
		cfg.Stage.Manifest = v
	}
	if v := os.Getenv("GRAYSTAGE_STAGE_TIMELINE"); v != "" {
		cfg.Stage.Timeline = v
	}

	// Database
	if v := os.Getenv("GRAYSTAGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYSTAGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYSTAGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYSTAGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYSTAGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYSTAGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYSTAGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GRAYSTAGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration, collecting every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Show.ID == "" {
		errs = append(errs, "show.id is required")
	}
	if c.Stage.Manifest == "" {
		errs = append(errs, "stage.manifest is required")
	}
	if c.Engine.QueueSize < 1 {
		errs = append(errs, "engine.queue_size must be positive")
	}
	for i, r := range c.Mapping.Rules {
		if r.Marker == "" {
			errs = append(errs, fmt.Sprintf("mapping.rules[%d].marker is required", i))
		}
		if len(r.Targets) == 0 {
			errs = append(errs, fmt.Sprintf("mapping.rules[%d] needs at least one target", i))
		}
		for j, tgt := range r.Targets {
			if tgt.MajorID <= 0 && tgt.PropsName == "" {
				errs = append(errs, fmt.Sprintf("mapping.rules[%d].targets[%d] needs major_id or props_name", i, j))
			}
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.MissRetentionDays < 0 {
		errs = append(errs, "database.miss_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
