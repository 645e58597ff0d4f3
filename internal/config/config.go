package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	dirName  = ".echonode"
	fileName = "config.yaml"

	envPrefix = "ECHONODE"
)

const (
	MsgIDCounter = "counter"
	MsgIDReuse   = "reuse"

	OnDecodeErrorFatal = "fatal"
	OnDecodeErrorReply = "reply"
)

type Config struct {
	Log  LogConfig  `mapstructure:"log" json:"log"`
	Node NodeConfig `mapstructure:"node" json:"node"`
	Tap  TapConfig  `mapstructure:"tap" json:"tap"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

type NodeConfig struct {
	MsgIDMode     string `mapstructure:"msg_id_mode" json:"msg_id_mode"`
	OnDecodeError string `mapstructure:"on_decode_error" json:"on_decode_error"`
}

type TapConfig struct {
	RedisURL  string `mapstructure:"redis_url" json:"redis_url"`
	Channel   string `mapstructure:"channel" json:"channel"`
	TimeoutMs int    `mapstructure:"timeout_ms" json:"timeout_ms"`
}

type LoadOptions struct {
	// ConfigFile overrides path resolution. Empty means ResolveConfigPath("").
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("node.msg_id_mode", MsgIDCounter)
	v.SetDefault("node.on_decode_error", OnDecodeErrorFatal)
	v.SetDefault("tap.redis_url", "")
	v.SetDefault("tap.channel", "echonode:frames")
	v.SetDefault("tap.timeout_ms", 200)
}

// Load reads the config file (if any) and ECHONODE_* environment variables
// over built-in defaults. A missing config file is not an error unless it
// was named explicitly.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := ResolveConfigPath(opts.ConfigFile)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if opts.ConfigFile != "" || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid config: log.format %q (want text|json)", c.Log.Format)
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q (want debug|info|warn|error)", c.Log.Level)
	}
	switch c.Node.MsgIDMode {
	case MsgIDCounter, MsgIDReuse:
	default:
		return fmt.Errorf("invalid config: node.msg_id_mode %q (want counter|reuse)", c.Node.MsgIDMode)
	}
	switch c.Node.OnDecodeError {
	case OnDecodeErrorFatal, OnDecodeErrorReply:
	default:
		return fmt.Errorf("invalid config: node.on_decode_error %q (want fatal|reply)", c.Node.OnDecodeError)
	}
	if c.Tap.TimeoutMs < 0 {
		return errors.New("invalid config: tap.timeout_ms must be >= 0")
	}
	if c.Tap.RedisURL != "" && strings.TrimSpace(c.Tap.Channel) == "" {
		return errors.New("invalid config: tap.channel is required when tap.redis_url is set")
	}
	return nil
}

// ResolveConfigPath returns explicit when set. Otherwise it walks up from the
// working directory to the project root (the first directory holding .git)
// looking for .echonode/config.yaml, and falls back to DefaultConfigPath.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for {
			candidate := filepath.Join(dir, dirName, fileName)
			if fileExists(candidate) {
				return candidate
			}
			if fileExists(filepath.Join(dir, ".git")) {
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return DefaultConfigPath()
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, dirName, fileName)
}

// ApplyFile validates src and copies it to dst, creating dst's directory.
func ApplyFile(src, dst string) error {
	if dst == "" {
		return errors.New("no destination config path")
	}
	cfg, err := Load(LoadOptions{ConfigFile: src})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
