// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "sigscope/internal/log"
	"sigscope/internal/source"
	"sigscope/pkg/bitint"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// candidates are searched in order when no path is given.
var candidates = []string{
	"sigscope.yaml",
	"config.yaml",
}

// LoadConfig loads configuration from the YAML file at path. If path is empty,
// it searches the default locations and falls back to built-in defaults when
// none exists. Environment overrides are applied last, then the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail late, when the session
// is opened. The input file itself is not checked here since the command
// line may still supply it.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalid, c.LogLevel)
	}

	s := c.Source
	if s.WindowSize <= 0 || s.WindowSize > source.MaxWindowSize {
		return fmt.Errorf("%w: source.window_size must be in [1, %d], got %d",
			ErrInvalid, source.MaxWindowSize, s.WindowSize)
	}
	if !bitint.IsPowerOfTwo(s.WindowSize) {
		next := bitint.NextPowerOfTwo(s.WindowSize)
		applog.Warnf("source.window_size %d is not a power of two; the transform will be slower (next: %d = 2^%d)",
			s.WindowSize, next, bitint.Log2(next))
	}
	if _, err := source.ParseSampleFormat(s.Format); err != nil {
		return fmt.Errorf("%w: source.format: %v", ErrInvalid, err)
	}
	if _, err := source.ParseWindowFunc(s.FFTWindow); err != nil {
		return fmt.Errorf("%w: source.fft_window: %v", ErrInvalid, err)
	}
	if s.SampleRate < 0 {
		return fmt.Errorf("%w: source.sample_rate must not be negative", ErrInvalid)
	}
	if s.PullSize <= 0 || s.PullSize > MaxPullSize {
		return fmt.Errorf("%w: source.pull_size must be in [1, %d], got %d", ErrInvalid, MaxPullSize, s.PullSize)
	}
	if s.StreamSize <= 0 {
		return fmt.Errorf("%w: source.stream_size must be positive", ErrInvalid)
	}

	if c.Analysis.Bands <= 0 {
		return fmt.Errorf("%w: analysis.bands must be positive", ErrInvalid)
	}

	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("%w: recording.bit_depth must be 16, 24 or 32, got %d", ErrInvalid, c.Recording.BitDepth)
		}
		if c.Recording.File == "" && c.Recording.OutputDir == "" {
			return fmt.Errorf("%w: recording.output_dir must be set when recording is enabled", ErrInvalid)
		}
	}

	if c.Gate.Hold < 0 {
		return fmt.Errorf("%w: gate.hold must not be negative", ErrInvalid)
	}

	t := c.Transport
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("%w: transport.udp_target_address %q appears invalid (missing port?)", ErrInvalid, t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must be positive when UDP is enabled", ErrInvalid)
		}
	}
	if t.WebSocketEnabled && t.WebSocketAddress == "" {
		return fmt.Errorf("%w: transport.websocket_address must be set when the websocket is enabled", ErrInvalid)
	}
	if t.MQTTEnabled {
		if t.MQTTBroker == "" || t.MQTTTopic == "" {
			return fmt.Errorf("%w: transport.mqtt_broker and transport.mqtt_topic must be set when MQTT is enabled", ErrInvalid)
		}
		if t.MQTTQoS > 2 {
			return fmt.Errorf("%w: transport.mqtt_qos must be 0, 1 or 2", ErrInvalid)
		}
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparsable values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Debugf("configuration: overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}

	// ENV_SOURCE_{...}
	if val, ok := os.LookupEnv("ENV_SOURCE_FILE"); ok {
		c.Source.File = val
		applog.Debugf("configuration: overriding source.file from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_SOURCE_WINDOW_SIZE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Source.WindowSize = n
			applog.Debugf("configuration: overriding source.window_size from env: %d", n)
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
		}
	}

	// ENV_MQTT_{...}
	if val, ok := os.LookupEnv("ENV_MQTT_BROKER"); ok {
		c.Transport.MQTTBroker = val
	}
	if val, ok := os.LookupEnv("ENV_MQTT_TOPIC"); ok {
		c.Transport.MQTTTopic = val
	}
}

// SampleFormat returns the parsed source format. Call Validate first.
func (c *Config) SampleFormat() source.SampleFormat {
	f, _ := source.ParseSampleFormat(c.Source.Format)
	return f
}

// Taper returns the parsed taper. Call Validate first.
func (c *Config) Taper() source.WindowFunc {
	w, _ := source.ParseWindowFunc(c.Source.FFTWindow)
	return w
}

// SourceParams builds the source parameters for the configured input. The
// format guessed from the file name is overridden by an explicit format, and
// raw I/Q without a configured rate gets the nominal default whatever the
// file is called.
func (c *Config) SourceParams() source.Params {
	s := c.Source

	p := source.NewParams(s.File)
	p.WindowSize = s.WindowSize
	if f := c.SampleFormat(); f != source.FormatAuto {
		p.Format = f
	}
	switch {
	case s.SampleRate > 0:
		p.SampleRate = s.SampleRate
	case p.Format == source.FormatRawIQ:
		p.SampleRate = source.DefaultRawSampleRate
	}
	p.Taper = c.Taper()
	return p
}
