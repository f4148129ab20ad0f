package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for DoorGuard Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// This is the installation-time configuration (broker endpoint, pins, timings).
// Field-provisioned data (network credentials, notification target) lives in the
// configuration record managed by the store package.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Storage      StorageConfig      `yaml:"storage"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Network      NetworkConfig      `yaml:"network"`
	Time         TimeConfig         `yaml:"time"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Alarm        AlarmConfig        `yaml:"alarm"`
	Hardware     HardwareConfig     `yaml:"hardware"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
	Journal      JournalConfig      `yaml:"journal"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig identifies this node.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// StorageConfig describes the flash volume holding the configuration record.
type StorageConfig struct {
	// Path is the directory the flash partition is mounted on.
	Path string `yaml:"path"`

	// RecordFile is the record filename relative to Path.
	RecordFile string `yaml:"record_file"`
}

// ProvisioningConfig contains the first-boot web form settings.
type ProvisioningConfig struct {
	// Listen is the address the form server binds to (e.g. ":80").
	Listen string `yaml:"listen"`

	// AccessPointSSID and AccessPointPassword configure the local access point.
	// An empty password opens the access point.
	AccessPointSSID     string `yaml:"ap_ssid"`
	AccessPointPassword string `yaml:"ap_password"`

	// ReadTimeout bounds each request read (seconds).
	ReadTimeout int `yaml:"read_timeout"`
}

// NetworkConfig selects how the wireless link is brought up.
type NetworkConfig struct {
	// Driver is "nmcli" or "none".
	Driver string `yaml:"driver"`

	// Interface is the wireless device name (e.g. "wlan0").
	Interface string `yaml:"interface"`

	// ConnectTimeout bounds a station connect attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// TimeConfig contains clock synchronisation settings.
type TimeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
	Port    int    `yaml:"port"`
	Timeout int    `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	TLS    MQTTTLSConfig    `yaml:"tls"`

	// AlertTopic receives one event per door-open transition. Empty selects
	// the per-node topic doorguard/<client_id>/alert.
	AlertTopic string `yaml:"alert_topic"`

	// KeepAlive is the MQTT keepalive interval (seconds).
	KeepAlive int `yaml:"keepalive"`

	// ConnectTimeout bounds transport dial and broker handshake (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig contains secure transport material.
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CAFile     string `yaml:"ca_file"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	ServerName string `yaml:"server_name"`
}

// AlarmConfig contains the alarm loop timing.
type AlarmConfig struct {
	// PollInterval is the fixed loop interval (milliseconds).
	PollInterval int `yaml:"poll_interval"`
}

// HardwareConfig selects and configures the sensor, indicator and badge drivers.
type HardwareConfig struct {
	// Driver is "periph" or "sim".
	Driver string `yaml:"driver"`

	DoorPin        string `yaml:"door_pin"`
	DoorActiveHigh bool   `yaml:"door_active_high"`
	LEDPin         string `yaml:"led_pin"`
	ButtonPin      string `yaml:"button_pin"`

	RFID RFIDConfig `yaml:"rfid"`

	// SimDir is the directory used by the sim driver.
	SimDir string `yaml:"sim_dir"`
}

// RFIDConfig configures the MFRC522 badge reader.
type RFIDConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SPIPort  string `yaml:"spi_port"`
	ResetPin string `yaml:"reset_pin"`
	IRQPin   string `yaml:"irq_pin"`

	// PollTimeout bounds each presence query (milliseconds).
	PollTimeout int `yaml:"poll_timeout"`
}

// Maintenance modes. Exactly one applies per deployment.
const (
	MaintenanceDisabled   = "disabled"
	MaintenanceClearAlert = "clear_alert"
	MaintenanceEraseStore = "erase_store"
)

// MaintenanceConfig selects what the maintenance button does.
type MaintenanceConfig struct {
	Mode     string `yaml:"mode"`
	Debounce int    `yaml:"debounce"` // milliseconds
}

// JournalConfig contains alert journal (SQLite) settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOORGUARD_SECTION_KEY
// For example: DOORGUARD_MQTT_HOST, DOORGUARD_STORAGE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
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
		Device: DeviceConfig{
			ID: "doorguard-01",
		},
		Storage: StorageConfig{
			Path:       "/var/lib/doorguard/flash",
			RecordFile: "wifi.txt",
		},
		Provisioning: ProvisioningConfig{
			Listen:          ":80",
			AccessPointSSID: "DoorGuard-Setup",
			ReadTimeout:     5,
		},
		Network: NetworkConfig{
			Driver:         "nmcli",
			Interface:      "wlan0",
			ConnectTimeout: 30,
		},
		Time: TimeConfig{
			Enabled: true,
			Server:  "time.google.com",
			Port:    123,
			Timeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     8883,
				ClientID: "doorguard-01",
			},
			TLS: MQTTTLSConfig{
				Enabled: true,
			},
			AlertTopic:     "doorguard/alert",
			KeepAlive:      60,
			ConnectTimeout: 10,
		},
		Alarm: AlarmConfig{
			PollInterval: 500,
		},
		Hardware: HardwareConfig{
			Driver:         "periph",
			DoorPin:        "GPIO17",
			DoorActiveHigh: true,
			LEDPin:         "GPIO27",
			ButtonPin:      "GPIO22",
			RFID: RFIDConfig{
				Enabled:     true,
				SPIPort:     "",
				ResetPin:    "GPIO25",
				IRQPin:      "GPIO24",
				PollTimeout: 50,
			},
			SimDir: "/run/doorguard/sim",
		},
		Maintenance: MaintenanceConfig{
			Mode:     MaintenanceClearAlert,
			Debounce: 200,
		},
		Journal: JournalConfig{
			Enabled:     false,
			Path:        "/var/lib/doorguard/journal.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DOORGUARD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOORGUARD_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}

	// MQTT
	if v := os.Getenv("DOORGUARD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOORGUARD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOORGUARD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("DOORGUARD_HARDWARE_DRIVER"); v != "" {
		cfg.Hardware.Driver = v
	}

	if v := os.Getenv("DOORGUARD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	if c.Storage.Path == "" {
		errs = append(errs, "storage.path is required")
	}
	if c.Storage.RecordFile == "" || strings.ContainsAny(c.Storage.RecordFile, `/\`) {
		errs = append(errs, "storage.record_file must be a plain filename")
	}

	if c.Provisioning.Listen == "" {
		errs = append(errs, "provisioning.listen is required")
	}
	if c.Provisioning.ReadTimeout <= 0 {
		errs = append(errs, "provisioning.read_timeout must be positive")
	}

	switch c.Network.Driver {
	case "nmcli", "none":
	default:
		errs = append(errs, "network.driver must be nmcli or none")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if strings.ContainsAny(c.MQTT.AlertTopic, "+#") {
		errs = append(errs, "mqtt.alert_topic must not contain wildcards")
	}
	if (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}

	if c.Alarm.PollInterval <= 0 {
		errs = append(errs, "alarm.poll_interval must be positive")
	}

	switch c.Hardware.Driver {
	case "periph":
		if c.Hardware.DoorPin == "" || c.Hardware.LEDPin == "" {
			errs = append(errs, "hardware.door_pin and hardware.led_pin are required")
		}
	case "sim":
		if c.Hardware.SimDir == "" {
			errs = append(errs, "hardware.sim_dir is required for the sim driver")
		}
	default:
		errs = append(errs, "hardware.driver must be periph or sim")
	}

	switch c.Maintenance.Mode {
	case MaintenanceDisabled, MaintenanceClearAlert, MaintenanceEraseStore:
	default:
		errs = append(errs, "maintenance.mode must be disabled, clear_alert or erase_store")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RecordPath returns the absolute configuration record path.
func (c *Config) RecordPath() string {
	return strings.TrimRight(c.Storage.Path, "/") + "/" + c.Storage.RecordFile
}

// GetPollInterval returns the alarm poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Alarm.PollInterval) * time.Millisecond
}

// GetProvisioningReadTimeout returns the provisioning read timeout as a Duration.
func (c *Config) GetProvisioningReadTimeout() time.Duration {
	return time.Duration(c.Provisioning.ReadTimeout) * time.Second
}

// GetMQTTConnectTimeout returns the transport/broker connect timeout as a Duration.
func (c *Config) GetMQTTConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetNetworkConnectTimeout returns the link connect timeout as a Duration.
func (c *Config) GetNetworkConnectTimeout() time.Duration {
	return time.Duration(c.Network.ConnectTimeout) * time.Second
}
