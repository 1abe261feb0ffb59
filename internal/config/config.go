// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for a session.
const (
	DefaultLogLevel    = "info"
	DefaultWindowSize  = 512
	DefaultFFTWindow   = "Hann"
	DefaultFormat      = "auto"
	DefaultStreamSize  = 4096
	DefaultPullSize    = 1024
	DefaultBands       = 16
	DefaultOutputDir   = "./recordings"
	DefaultBitDepth    = 16
	DefaultGateLevelDB = -60.0

	DefaultWebSocketAddress = "127.0.0.1:8080"
	DefaultWebSocketPath    = "/ws"
	DefaultUDPTarget        = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz
	DefaultMQTTBroker       = "tcp://127.0.0.1:1883"
	DefaultMQTTTopic        = "sigscope" // Messages go to <topic>/<type>.
	DefaultMQTTClientID     = "sigscope"

	// MaxPullSize bounds a single engine read.
	MaxPullSize = 1 << 16
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Debug logging regardless of log_level.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn" or "error".
	Source    SourceConfig    `yaml:"source"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Recording RecordingConfig `yaml:"recording"`
	Gate      GateConfig      `yaml:"gate"`
	Transport TransportConfig `yaml:"transport"`
}

// SourceConfig describes the input file and how it is windowed.
type SourceConfig struct {
	File       string `yaml:"file"`        // Input path; ".raw" selects headerless I/Q.
	WindowSize int    `yaml:"window_size"` // Complex samples per window.
	Format     string `yaml:"format"`      // "auto", "mono", "stereo" or "raw".
	SampleRate int    `yaml:"sample_rate"` // Nominal rate for raw I/Q (0 uses source.DefaultRawSampleRate).
	FFTWindow  string `yaml:"fft_window"`  // Taper applied before the transform.
	StreamSize int    `yaml:"stream_size"` // Samples buffered on the block output.
	PullSize   int    `yaml:"pull_size"`   // Samples requested per engine read.
}

// AnalysisConfig controls the spectrum consumers.
type AnalysisConfig struct {
	Bands int `yaml:"bands"` // Number of band-power bins.
}

// RecordingConfig controls the I/Q recorder.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	File      string `yaml:"file"`       // Output path; generated in OutputDir when empty.
	OutputDir string `yaml:"output_dir"` // Directory for generated recordings.
	BitDepth  int    `yaml:"bit_depth"`  // 16, 24 or 32.
}

// GateConfig controls the level gate in front of the publishers.
type GateConfig struct {
	Enabled bool    `yaml:"enabled"`
	LevelDB float64 `yaml:"level_db"` // Windows whose peak is below this are not published.
	Hold    int     `yaml:"hold"`     // Windows kept open after the level drops.
}

// TransportConfig holds the network publishers.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address"`
	WebSocketPath    string `yaml:"websocket_path"`

	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`

	MQTTEnabled  bool   `yaml:"mqtt_enabled"`
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTQoS      byte   `yaml:"mqtt_qos"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Source: SourceConfig{
			WindowSize: DefaultWindowSize,
			Format:     DefaultFormat,
			FFTWindow:  DefaultFFTWindow,
			StreamSize: DefaultStreamSize,
			PullSize:   DefaultPullSize,
		},
		Analysis: AnalysisConfig{
			Bands: DefaultBands,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultOutputDir,
			BitDepth:  DefaultBitDepth,
		},
		Gate: GateConfig{
			LevelDB: DefaultGateLevelDB,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			WebSocketPath:    DefaultWebSocketPath,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval,
			MQTTBroker:       DefaultMQTTBroker,
			MQTTTopic:        DefaultMQTTTopic,
			MQTTClientID:     DefaultMQTTClientID,
		},
	}
}
