// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Device    DeviceConfig     `mapstructure:"device"`
	Upstreams []UpstreamConfig `mapstructure:"upstreams"`
	Backdoor  BackdoorConfig   `mapstructure:"backdoor"`
	Mirror    MirrorConfig     `mapstructure:"mirror"`
	Log       LogConfig        `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	File   string `mapstructure:"file"`   // Log file path
	Format string `mapstructure:"format"` // text, json
}

// DeviceConfig describes the emulated power supplies.
type DeviceConfig struct {
	Name         string             `mapstructure:"name"`
	Dialect      string             `mapstructure:"dialect"` // "direct" (S0) or "scaled" (S1)
	Supplies     []SupplyConfig     `mapstructure:"supplies"`
	StatusLayout StatusLayoutConfig `mapstructure:"status_layout"` // scaled dialect only
}

// SupplyConfig defines one addressable supply on the chain.
type SupplyConfig struct {
	Address          int     `mapstructure:"address"`
	FullscaleVoltage float64 `mapstructure:"fullscale_voltage"`
	FullscaleCurrent float64 `mapstructure:"fullscale_current"`
}

// StatusLayoutConfig overrides the S1 status character layout.
type StatusLayoutConfig struct {
	InterlockBit int    `mapstructure:"interlock_bit"`
	PowerBit     int    `mapstructure:"power_bit"`
	Set          string `mapstructure:"set"`
	Clear        string `mapstructure:"clear"`
	InvertPower  bool   `mapstructure:"invert_power"`
}

// UpstreamConfig defines a channel a controller connects through
type UpstreamConfig struct {
	Type   string       `mapstructure:"type"`   // "tcp", "tcp_dial", "serial"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "tcp" or "tcp_dial"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "serial"
}

// BackdoorConfig defines the out-of-band test control server
type BackdoorConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Address     string   `mapstructure:"address"`
	CorsOrigins []string `mapstructure:"cors_origins"` // empty disables CORS
}

// MirrorConfig defines where the live state mirror is written
type MirrorConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:57677", or the terminal server to dial
}

// SerialConfig defines serial port settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig loads configuration from file. An empty configFile searches the
// default locations and falls back to defaults when nothing is found.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/psuemu/")
		v.AddConfigPath("$HOME/.psuemu")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PSUEMU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	if len(config.Device.Supplies) == 0 {
		config.Device.Supplies = []SupplyConfig{defaultSupply()}
	}
	if len(config.Upstreams) == 0 {
		config.Upstreams = []UpstreamConfig{{Type: "tcp", Tcp: TcpConfig{Address: DefaultStreamAddress}}}
	}
	for j := range config.Upstreams {
		fixupSerial(&config.Upstreams[j].Serial)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Defaults of the reference deployment.
const (
	DefaultFullscaleVoltage = 150
	DefaultFullscaleCurrent = 500
	DefaultStreamAddress    = "127.0.0.1:57677"
	DefaultBackdoorAddress  = "127.0.0.1:57678"
)

func defaultSupply() SupplyConfig {
	return SupplyConfig{
		Address:          0,
		FullscaleVoltage: DefaultFullscaleVoltage,
		FullscaleCurrent: DefaultFullscaleCurrent,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("device.name", "transtechnik")
	v.SetDefault("device.dialect", "direct")
	v.SetDefault("device.status_layout.interlock_bit", 0)
	v.SetDefault("device.status_layout.power_bit", 1)
	v.SetDefault("device.status_layout.set", "!")
	v.SetDefault("device.status_layout.clear", ".")
	v.SetDefault("backdoor.enabled", true)
	v.SetDefault("backdoor.address", DefaultBackdoorAddress)
	v.SetDefault("mirror.type", "memory")
}

// Validate checks values viper cannot check by type alone.
func (c *Config) Validate() error {
	for i, s := range c.Device.Supplies {
		if s.FullscaleVoltage <= 0 || s.FullscaleCurrent <= 0 {
			return fmt.Errorf("device.supplies[%d]: fullscale_voltage and fullscale_current must be positive", i)
		}
	}
	if len(c.Device.StatusLayout.Set) != 1 || len(c.Device.StatusLayout.Clear) != 1 {
		return fmt.Errorf("device.status_layout: set and clear must be single characters")
	}
	for i, us := range c.Upstreams {
		switch us.Type {
		case "tcp", "tcp_dial":
			if us.Tcp.Address == "" {
				return fmt.Errorf("upstreams[%d]: tcp.address is required", i)
			}
		case "serial":
			if us.Serial.Device == "" {
				return fmt.Errorf("upstreams[%d]: serial.device is required", i)
			}
		default:
			return fmt.Errorf("upstreams[%d]: unknown type %q", i, us.Type)
		}
	}
	switch c.Mirror.Type {
	case "memory", "":
	case "file", "mmap":
		if c.Mirror.Path == "" {
			return fmt.Errorf("mirror: path is required for type %q", c.Mirror.Type)
		}
	default:
		return fmt.Errorf("mirror: unknown type %q", c.Mirror.Type)
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 9600
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}
