package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/minicap"
	"gopkg.in/yaml.v3"
)

// Config holds everything the command line, the environment and the
// config file can set.
type Config struct {
	ADBPath    string `yaml:"adb_path" json:"adb_path"`
	DeviceID   string `yaml:"device_id" json:"device_id"`
	AssetDir   string `yaml:"asset_dir" json:"asset_dir"`
	RemoteDir  string `yaml:"remote_dir" json:"remote_dir"`
	LocalPort  int    `yaml:"local_port" json:"local_port"`
	SocketName string `yaml:"socket_name" json:"socket_name"`
	Rotation   int    `yaml:"rotation" json:"rotation"`

	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
	PushTimeout    time.Duration `yaml:"push_timeout" json:"push_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay" json:"settle_delay"`
	LaunchDelay    time.Duration `yaml:"launch_delay" json:"launch_delay"`
	DialTimeout    time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	MaxFrameSize   uint32        `yaml:"max_frame_size" json:"max_frame_size"`

	ViewerAddr  string `yaml:"viewer_addr" json:"viewer_addr"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	Debug bool `yaml:"debug" json:"debug"`
	Quiet bool `yaml:"quiet" json:"quiet"`
}

func Default() *Config {
	return &Config{
		AssetDir:       "assets",
		RemoteDir:      constants.RemoteDir,
		LocalPort:      constants.DefaultLocalPort,
		SocketName:     constants.HelperSocketName,
		CommandTimeout: constants.DefaultCommandTimeout,
		PushTimeout:    constants.DefaultPushTimeout,
		SettleDelay:    constants.DefaultSettleDelay,
		LaunchDelay:    constants.DefaultLaunchDelay,
		DialTimeout:    constants.DefaultDialTimeout,
		MaxFrameSize:   constants.DefaultMaxFrameSize,
		ViewerAddr:     ":8080",
	}
}

// Load reads path over the defaults and then applies MINICAP_* environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("path", path).Msg("[Config] file not found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ADBPath = getEnv("MINICAP_ADB_PATH", c.ADBPath)
	c.DeviceID = getEnv("MINICAP_DEVICE_ID", c.DeviceID)
	c.AssetDir = getEnv("MINICAP_ASSETS", c.AssetDir)
	c.LocalPort = getEnvInt("MINICAP_PORT", c.LocalPort)
	c.Rotation = getEnvInt("MINICAP_ROTATION", c.Rotation)
	c.ViewerAddr = getEnv("MINICAP_VIEWER_ADDR", c.ViewerAddr)
	c.MetricsAddr = getEnv("MINICAP_METRICS_ADDR", c.MetricsAddr)
}

func (c *Config) Validate() error {
	if _, err := definitions.ParseRotation(c.Rotation); err != nil {
		return err
	}
	if c.LocalPort <= 0 || c.LocalPort > 65535 {
		return fmt.Errorf("invalid port %d", c.LocalPort)
	}
	if c.Debug && c.Quiet {
		return errors.New("--debug and --quiet are mutually exclusive")
	}
	return nil
}

func (c *Config) SessionOptions() minicap.SessionOptions {
	opts := minicap.DefaultSessionOptions()
	opts.AssetDir = c.AssetDir
	opts.RemoteDir = c.RemoteDir
	opts.LocalPort = c.LocalPort
	opts.SocketName = c.SocketName
	opts.Rotation = definitions.Rotation(c.Rotation)
	opts.CommandTimeout = c.CommandTimeout
	opts.PushTimeout = c.PushTimeout
	opts.SettleDelay = c.SettleDelay
	opts.LaunchDelay = c.LaunchDelay
	opts.DialTimeout = c.DialTimeout
	opts.MaxFrameSize = c.MaxFrameSize
	return opts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
