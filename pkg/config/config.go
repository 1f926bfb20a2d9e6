package config

import (
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Logging     LoggingConfig     `yaml:"logging"`
	API         APIConfig         `yaml:"api"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Display     DisplayConfig     `yaml:"display"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // Transport read timeout, bounds how long the read loop ignores a stop request
	BufferSize  int           `yaml:"buffer_size"`  // Capacity of the sample queue between reader and consumer
	JoinTimeout time.Duration `yaml:"join_timeout"` // How long Disconnect waits for the read loop to exit
}

// AcquisitionConfig contains acquisition controller parameters.
type AcquisitionConfig struct {
	DeviceName      string        `yaml:"device_name"`       // Prefix of session log files
	SampleRateHz    int           `yaml:"sample_rate_hz"`    // Consumption pacing and energy duration base
	VoltageV        float64       `yaml:"voltage_v"`         // Nominal supply voltage used for energy estimation
	ZeroSamples     int           `yaml:"zero_samples"`      // Reads attempted by zero calibration
	ZeroReadTimeout time.Duration `yaml:"zero_read_timeout"` // Per-read timeout during zero calibration
	StopTimeout     time.Duration `yaml:"stop_timeout"`      // How long Stop waits for the consumption loop
}

// SensorConfig describes the current sensor.
type SensorConfig struct {
	SensitivityMVPerA float64 `yaml:"sensitivity_mv_per_a"` // Informational only
}

// LoggingConfig contains session log and diagnostic log settings.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// APIConfig contains the HTTP control surface settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MQTTConfig contains sample fan-out settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// DisplayConfig contains live chart settings.
type DisplayConfig struct {
	WindowSeconds  float64 `yaml:"window_seconds"`
	MaxPoints      int     `yaml:"max_points"`
	AverageSamples int     `yaml:"average_samples"` // Moving average window for display (0 = disabled)
}

// MockConfig contains simulated source configuration.
type MockConfig struct {
	BaseMA         float64       `yaml:"base_ma"`         // Resting current (mA)
	AmplitudeMA    float64       `yaml:"amplitude_ma"`    // Load swing amplitude (mA)
	NoiseMA        float64       `yaml:"noise_ma"`        // Noise amplitude (mA)
	Period         time.Duration `yaml:"period"`          // Load cycle period
	SampleInterval time.Duration `yaml:"sample_interval"` // Time between simulated samples
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyUSB0", // "COM6" on Windows
			BaudRate:    9600,
			ReadTimeout: time.Second,
			BufferSize:  4096,
			JoinTimeout: time.Second,
		},
		Acquisition: AcquisitionConfig{
			DeviceName:      "energy_monitor",
			SampleRateHz:    50,
			VoltageV:        5.0,
			ZeroSamples:     100,
			ZeroReadTimeout: time.Second,
			StopTimeout:     2 * time.Second,
		},
		Sensor: SensorConfig{
			SensitivityMVPerA: 185.0, // ACS712-05B
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
		API: APIConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8080",
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "energymon",
			Topic:    "energymon/samples",
		},
		Display: DisplayConfig{
			WindowSeconds:  10,
			MaxPoints:      1000,
			AverageSamples: 0,
		},
		Mock: MockConfig{
			BaseMA:         120.0,
			AmplitudeMA:    80.0,
			NoiseMA:        5.0,
			Period:         4 * time.Second,
			SampleInterval: 20 * time.Millisecond, // 50 Hz, same cadence as the firmware
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to read config file %s", filename)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse config file %s", filename)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write config file %s", filename)
	}

	return nil
}

// SampleInterval returns the consumption pacing interval derived from SampleRateHz.
func (c *Config) SampleInterval() time.Duration {
	if c.Acquisition.SampleRateHz <= 0 {
		return time.Second / time.Duration(Default().Acquisition.SampleRateHz)
	}
	return time.Second / time.Duration(c.Acquisition.SampleRateHz)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout <= 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.Serial.BufferSize <= 0 {
		c.Serial.BufferSize = def.Serial.BufferSize
	}
	if c.Serial.JoinTimeout <= 0 {
		c.Serial.JoinTimeout = def.Serial.JoinTimeout
	}

	if c.Acquisition.DeviceName == "" {
		c.Acquisition.DeviceName = def.Acquisition.DeviceName
	}
	if c.Acquisition.SampleRateHz <= 0 {
		c.Acquisition.SampleRateHz = def.Acquisition.SampleRateHz
	}
	if c.Acquisition.VoltageV <= 0 {
		c.Acquisition.VoltageV = def.Acquisition.VoltageV
	}
	if c.Acquisition.ZeroSamples <= 0 {
		c.Acquisition.ZeroSamples = def.Acquisition.ZeroSamples
	}
	if c.Acquisition.ZeroReadTimeout <= 0 {
		c.Acquisition.ZeroReadTimeout = def.Acquisition.ZeroReadTimeout
	}
	if c.Acquisition.StopTimeout <= 0 {
		c.Acquisition.StopTimeout = def.Acquisition.StopTimeout
	}

	if c.Sensor.SensitivityMVPerA == 0 {
		c.Sensor.SensitivityMVPerA = def.Sensor.SensitivityMVPerA
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = def.Logging.Dir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}

	if c.API.Addr == "" {
		c.API.Addr = def.API.Addr
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}

	if c.Display.WindowSeconds <= 0 {
		c.Display.WindowSeconds = def.Display.WindowSeconds
	}
	if c.Display.MaxPoints <= 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}

	if c.Mock.Period <= 0 {
		c.Mock.Period = def.Mock.Period
	}
	if c.Mock.SampleInterval <= 0 {
		c.Mock.SampleInterval = def.Mock.SampleInterval
	}
}
