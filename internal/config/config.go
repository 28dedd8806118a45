package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when looking up environment overrides,
// e.g. IMU_MQTT_BROKER.
const EnvPrefix = "IMU"

// Debug sink names accepted by DEBUG_SINK.
const (
	SinkStderr = "stderr"
	SinkStdout = "stdout"
	SinkNone   = "none"
)

// Config holds all application configuration values.
type Config struct {
	// Bus and chips
	I2CBus           string `yaml:"i2c_bus"` // "" selects the first registered bus
	BMI270Addr       uint16 `yaml:"bmi270_addr"`
	BMM150Addr       uint16 `yaml:"bmm150_addr"`
	BMI270ConfigFile string `yaml:"bmi270_config_file"`

	// Pins
	IRQPin string `yaml:"irq_pin"` // "" disables the interrupt bridge
	LEDPin string `yaml:"led_pin"`

	// Fault reporting
	DebugSink      string `yaml:"debug_sink"`
	HaltOnFault    bool   `yaml:"halt_on_fault"`
	MagApplyPreset bool   `yaml:"mag_apply_preset"`

	// MQTT
	MQTTBroker           string `yaml:"mqtt_broker"`
	MQTTClientIDProducer string `yaml:"mqtt_client_id_producer"`
	MQTTClientIDConsole  string `yaml:"mqtt_client_id_console"`
	MQTTClientIDWeb      string `yaml:"mqtt_client_id_web"`
	MQTTClientIDDisplay  string `yaml:"mqtt_client_id_display"`
	TopicIMU             string `yaml:"topic_imu"`

	// Timing
	SampleInterval int `yaml:"sample_interval"` // milliseconds, 0 = interrupt driven

	// Web Server
	WebServerPort int `yaml:"web_server_port"`

	// Display, an SSD1306 at its fixed 0x3C address
	DisplayUpdateInterval int `yaml:"display_update_interval"` // milliseconds

	Debug bool `yaml:"debug"`
}

// Package-level singleton: InitGlobal sets it once, Get reads it under a
// read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

var defaults = map[string]any{
	"i2c_bus":                 "",
	"bmi270_addr":             "0x68",
	"bmm150_addr":             "0x10",
	"bmi270_config_file":      "",
	"irq_pin":                 "",
	"led_pin":                 "",
	"debug_sink":              SinkStderr,
	"halt_on_fault":           false,
	"mag_apply_preset":        false,
	"mqtt_broker":             "",
	"mqtt_client_id_producer": "imu-producer",
	"mqtt_client_id_console":  "imu-console",
	"mqtt_client_id_web":      "imu-web",
	"mqtt_client_id_display":  "imu-display",
	"topic_imu":               "sensors/imu",
	"sample_interval":         10,
	"web_server_port":         8080,
	"display_update_interval": 200,
	"debug":                   false,
}

// newViper returns a viper instance reading KEY=VALUE files with IMU_
// environment overrides.
func newViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetConfigType("env")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads the KEY=VALUE configuration file and returns a Config struct.
// An empty path yields defaults plus environment overrides.
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.WithField("file", v.ConfigFileUsed()).Debug("config: loaded")
	}
	for _, key := range v.AllKeys() {
		if _, ok := defaults[key]; !ok {
			return nil, fmt.Errorf("unknown config key: %q", strings.ToUpper(key))
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		I2CBus:               v.GetString("i2c_bus"),
		BMI270ConfigFile:     v.GetString("bmi270_config_file"),
		IRQPin:               v.GetString("irq_pin"),
		LEDPin:               v.GetString("led_pin"),
		DebugSink:            strings.ToLower(v.GetString("debug_sink")),
		HaltOnFault:          v.GetBool("halt_on_fault"),
		MagApplyPreset:       v.GetBool("mag_apply_preset"),
		MQTTBroker:           v.GetString("mqtt_broker"),
		MQTTClientIDProducer: v.GetString("mqtt_client_id_producer"),
		MQTTClientIDConsole:  v.GetString("mqtt_client_id_console"),
		MQTTClientIDWeb:      v.GetString("mqtt_client_id_web"),
		MQTTClientIDDisplay:  v.GetString("mqtt_client_id_display"),
		TopicIMU:             v.GetString("topic_imu"),
		Debug:                v.GetBool("debug"),
	}

	var err error
	if cfg.BMI270Addr, err = parseAddr(v, "bmi270_addr"); err != nil {
		return nil, err
	}
	if cfg.BMM150Addr, err = parseAddr(v, "bmm150_addr"); err != nil {
		return nil, err
	}
	if cfg.SampleInterval, err = parseInt(v, "sample_interval"); err != nil {
		return nil, err
	}
	if cfg.WebServerPort, err = parseInt(v, "web_server_port"); err != nil {
		return nil, err
	}
	if cfg.DisplayUpdateInterval, err = parseInt(v, "display_update_interval"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseAddr(v *viper.Viper, key string) (uint16, error) {
	value := v.GetString(key)
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(key), value, err)
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("%s must be a 7-bit address, got %#x", strings.ToUpper(key), addr)
	}
	return uint16(addr), nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	value := v.GetString(key)
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToUpper(key), value, err)
	}
	return n, nil
}

// validate checks ranges and enumerations.
func (c *Config) validate() error {
	switch c.DebugSink {
	case SinkStderr, SinkStdout, SinkNone:
	default:
		return fmt.Errorf("DEBUG_SINK must be stderr, stdout or none, got %q", c.DebugSink)
	}
	if c.SampleInterval < 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be >= 0, got %d", c.SampleInterval)
	}
	if c.SampleInterval == 0 && c.IRQPin == "" {
		return fmt.Errorf("SAMPLE_INTERVAL is required when IRQ_PIN is not set")
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be > 0, got %d", c.DisplayUpdateInterval)
	}
	if c.HaltOnFault && c.LEDPin == "" {
		return fmt.Errorf("HALT_ON_FAULT requires LED_PIN")
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// InitGlobal initializes the global configuration from file. Only the first
// call loads; later calls are no-ops.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
