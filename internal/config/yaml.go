// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "pulse/internal/log"
)

// LoadConfig loads configuration from a YAML file at path. If path is empty
// it searches the default location ("pulse.yaml"); if no file is found the
// built-in defaults are used. Environment overrides are applied after the
// file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat("pulse.yaml"); err == nil {
			path = "pulse.yaml"
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
		cfg.ConfigPath = path
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects structurally broken configuration. Out-of-range tuning
// values are not errors; the Params conversions clamp them.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device %d is invalid", c.Audio.InputDevice)
	}
	if c.Audio.GateThreshold < 0 || c.Audio.GateThreshold > 1 {
		return fmt.Errorf("audio.gate_threshold %v outside [0,1]", c.Audio.GateThreshold)
	}
	if c.Transport.WebsocketEnabled && c.Transport.WebsocketAddr == "" {
		return fmt.Errorf("transport.websocket_addr must be set when the websocket is enabled")
	}
	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address %q is missing a port", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive")
		}
	}
	return nil
}

// applyEnvOverrides overlays PULSE_* environment variables on top of the
// loaded values. Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("PULSE_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
		} else {
			applog.Warnf("config: ignoring unparseable PULSE_DEBUG=%q", val)
		}
	}
	if val, ok := os.LookupEnv("PULSE_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("PULSE_INPUT_DEVICE"); ok {
		if id, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = id
		} else {
			applog.Warnf("config: ignoring unparseable PULSE_INPUT_DEVICE=%q", val)
		}
	}
	if val, ok := os.LookupEnv("PULSE_WS_ADDR"); ok {
		c.Transport.WebsocketEnabled = true
		c.Transport.WebsocketAddr = val
	}
	if val, ok := os.LookupEnv("PULSE_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPEnabled = true
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("PULSE_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
		} else {
			applog.Warnf("config: ignoring unparseable PULSE_UDP_SEND_INTERVAL=%q", val)
		}
	}
}
