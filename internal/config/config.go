package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScanInterval      = 30 * time.Second
	DefaultSNMPInterval      = 15 * time.Second
	DefaultSNMPTimeout       = 5 * time.Second
	DefaultSNMPPort          = 161
	DefaultRedfishInterval   = 45 * time.Second
	DefaultRedfishTimeout    = 12 * time.Second
	DefaultRedfishPort       = 443
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultSnapshotTTL       = 5 * time.Minute
	DefaultRetention         = 168 * time.Hour
)

// Config is the top-level daemon configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Devices []Device      `yaml:"devices"`
}

// ServerConfig holds the HTTP surface settings (REST API, WebSocket, /metrics).
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket hub and Prometheus
	// exposition listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures authentication for incoming API requests.
	Auth AuthConfig `yaml:"auth"`

	// BroadcastInterval controls how often the WebSocket hub pushes the
	// current snapshot to connected clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// SnapshotTTL is how long a device snapshot stays live without an
	// update before the device is reported as unreachable.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// AuthConfig configures REST API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name the key is expected in.
	// Defaults to "x-api-key".
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name or the default.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "x-api-key"
	}
	return a.Header
}

// StorageConfig configures the historical readings backend.
type StorageConfig struct {
	// Backend selects the storage implementation: sqlite. Empty disables history.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long historical readings are kept before pruning.
	Retention time.Duration `yaml:"retention"`
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "temperature_max_c > 85" or
	// "cert_days_left < 14".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Device describes one monitored BMC.
type Device struct {
	// ID is a unique, human-readable identifier for this device.
	ID string `yaml:"id"`

	// ScanInterval controls how often a coordinator cycle runs for this
	// device. Each protocol keeps its own cadence inside the cycle.
	ScanInterval time.Duration `yaml:"scan_interval"`

	SNMP    SNMPConfig    `yaml:"snmp"`
	Redfish RedfishConfig `yaml:"redfish"`

	// ManifestPath is where the discovery manifest is persisted so a restart
	// does not re-probe the device. Empty disables persistence.
	ManifestPath string `yaml:"manifest_path"`

	// Prefer overrides the built-in per-category protocol preference,
	// e.g. {temperature: redfish}. Values are "snmp" or "redfish".
	Prefer map[string]string `yaml:"prefer"`

	// IntrusionUnknownIsBreach flips the safe default for unrecognized
	// intrusion states. The default (false) treats an unknown state as
	// "no intrusion", favoring availability over false alarms; set true
	// for security-critical deployments that want the opposite.
	IntrusionUnknownIsBreach bool `yaml:"intrusion_unknown_is_breach"`
}

// SNMPConfig holds the tree-protocol connection settings for one device.
type SNMPConfig struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// Version is the SNMP version: 1 | 2c.
	Version string `yaml:"version"`

	// CommunityEnv is the name of the environment variable holding the
	// community string.
	CommunityEnv string `yaml:"community_env"`

	// Interval is the per-protocol poll cadence.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one whole poll call, including all request batches.
	Timeout time.Duration `yaml:"timeout"`

	Retries int `yaml:"retries"`
}

// Community returns the community string resolved from the environment,
// falling back to "public" when unset.
func (s SNMPConfig) Community() string {
	if s.CommunityEnv == "" {
		return "public"
	}
	if v := os.Getenv(s.CommunityEnv); v != "" {
		return v
	}
	return "public"
}

// Enabled reports whether this device has an SNMP endpoint configured.
func (s SNMPConfig) Enabled() bool { return s.Host != "" }

// RedfishConfig holds the graph-protocol connection settings for one device.
type RedfishConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`

	// PasswordEnv is the name of the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	// Interval is the per-protocol poll cadence.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one whole poll call, covering every resource fetch.
	Timeout time.Duration `yaml:"timeout"`

	// InsecureSkipVerify disables TLS certificate verification.
	// BMCs commonly present self-signed certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// SystemID and ManagerID select the Redfish resource instances.
	// Defaults match Dell iDRAC: System.Embedded.1 / iDRAC.Embedded.1.
	SystemID  string `yaml:"system_id"`
	ManagerID string `yaml:"manager_id"`
}

// Password returns the BMC password resolved from the environment.
func (r RedfishConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// Enabled reports whether this device has a Redfish endpoint configured.
func (r RedfishConfig) Enabled() bool { return r.Host != "" }

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	applyDeviceDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
			SnapshotTTL:       DefaultSnapshotTTL,
		},
		Storage: StorageConfig{
			Retention: DefaultRetention,
		},
	}
}

// applyDeviceDefaults fills per-device zero values after unmarshal —
// yaml cannot default slice elements up front.
func applyDeviceDefaults(cfg *Config) {
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.ScanInterval <= 0 {
			d.ScanInterval = DefaultScanInterval
		}
		if d.SNMP.Port == 0 {
			d.SNMP.Port = DefaultSNMPPort
		}
		if d.SNMP.Version == "" {
			d.SNMP.Version = "2c"
		}
		if d.SNMP.Interval <= 0 {
			d.SNMP.Interval = DefaultSNMPInterval
		}
		if d.SNMP.Timeout <= 0 {
			d.SNMP.Timeout = DefaultSNMPTimeout
		}
		if d.Redfish.Port == 0 {
			d.Redfish.Port = DefaultRedfishPort
		}
		if d.Redfish.Interval <= 0 {
			d.Redfish.Interval = DefaultRedfishInterval
		}
		if d.Redfish.Timeout <= 0 {
			d.Redfish.Timeout = DefaultRedfishTimeout
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		if !d.SNMP.Enabled() && !d.Redfish.Enabled() {
			return fmt.Errorf("devices[%d] %q: at least one of snmp.host or redfish.host is required", i, d.ID)
		}
		switch d.SNMP.Version {
		case "1", "2c":
		default:
			return fmt.Errorf("devices[%d] %q: unknown snmp version %q", i, d.ID, d.SNMP.Version)
		}
		for cat, proto := range d.Prefer {
			switch proto {
			case "snmp", "redfish":
			default:
				return fmt.Errorf("devices[%d] %q: prefer[%s]: unknown protocol %q", i, d.ID, cat, proto)
			}
		}
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode: unknown mode %q", cfg.Server.Auth.Mode)
	}
	switch cfg.Storage.Backend {
	case "sqlite", "":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend != "" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required when storage.backend is set")
	}
	return nil
}
