package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wricardo/tiltroom/game/sensor"
)

// EnvPrefix is prepended to every key when read from the environment
const EnvPrefix = "TILTROOM"

// DefaultFileName is looked up in the working directory when no file is given
const DefaultFileName = "tiltroom"

// Config holds every server setting
type Config struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`

	MaxPlayers     int           `mapstructure:"max_players"`
	AggregateScope string        `mapstructure:"aggregate_scope"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`

	// NATSURL selects the NATS bus; empty keeps delivery in process
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`

	ReadLimit   int64         `mapstructure:"read_limit"`
	WriteWait   time.Duration `mapstructure:"write_wait"`
	PongWait    time.Duration `mapstructure:"pong_wait"`
	CORSOrigins []string      `mapstructure:"cors_origins"`

	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`

	Ngrok NgrokConfig `mapstructure:"ngrok"`

	// File is the config file that was read, if any
	File string `mapstructure:"-"`
}

// NgrokConfig controls the optional public tunnel
type NgrokConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"authtoken"`
	Domain    string `mapstructure:"domain"`
}

// Addr returns host:port
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Scope returns the parsed aggregate scope
func (c *Config) Scope() sensor.Scope {
	s, _ := sensor.ParseScope(c.AggregateScope)
	return s
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", 3000)
	v.SetDefault("static_dir", "")
	v.SetDefault("max_players", 4)
	v.SetDefault("aggregate_scope", string(sensor.ScopeGlobal))
	v.SetDefault("sweep_interval", "5m")
	v.SetDefault("nats_url", "")
	v.SetDefault("subject_prefix", "tiltroom")
	v.SetDefault("read_limit", 64*1024)
	v.SetDefault("write_wait", "10s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "json")
	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.authtoken", "")
	v.SetDefault("ngrok.domain", "")
}

// Load resolves configuration from defaults, an optional YAML file, the
// environment and overrides, in increasing precedence. An explicit file
// that cannot be read is an error; the default file may be absent.
func Load(file string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for hosting platforms and the ngrok agent
	v.BindEnv("port", EnvPrefix+"_PORT", "PORT")
	v.BindEnv("ngrok.authtoken", EnvPrefix+"_NGROK_AUTHTOKEN", "NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")
	v.BindEnv("ngrok.domain", EnvPrefix+"_NGROK_DOMAIN", "NGROK_DOMAIN")
	v.BindEnv("ngrok.enabled", EnvPrefix+"_NGROK_ENABLED", "NGROK_ENABLED")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxPlayers < 1 {
		return fmt.Errorf("max_players must be at least 1, got %d", c.MaxPlayers)
	}
	if _, err := sensor.ParseScope(c.AggregateScope); err != nil {
		return err
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative, got %s", c.SweepInterval)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
