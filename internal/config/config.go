package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "OUTING"

type FeedCfg struct {
	Interval     time.Duration `mapstructure:"interval"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	Workers      int           `mapstructure:"workers"`
	Queue        int           `mapstructure:"queue"`
}

type TarantoolCfg struct {
	Address       string        `mapstructure:"address"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Reconnect     time.Duration `mapstructure:"reconnect"`
	MaxReconnects uint          `mapstructure:"max_reconnects"`
}

type Config struct {
	Level      string       `mapstructure:"level"`
	ConfigFile string       `mapstructure:"config_file"`
	SessionID  string       `mapstructure:"session_id"`
	ViewerID   string       `mapstructure:"viewer_id"`
	Output     string       `mapstructure:"output"`
	Demo       bool         `mapstructure:"demo"`
	RedisURI   string       `mapstructure:"redis_uri"`
	Feed       FeedCfg      `mapstructure:"feed"`
	Tarantool  TarantoolCfg `mapstructure:"tarantool"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("level", "info")
	v.SetDefault("config_file", "")
	v.SetDefault("output", "text")
	v.SetDefault("demo", false)
	v.SetDefault("redis_uri", "")
	v.SetDefault("feed.interval", 3*time.Second)
	v.SetDefault("feed.store_timeout", 10*time.Second)
	v.SetDefault("feed.workers", 4)
	v.SetDefault("feed.queue", 16)
	v.SetDefault("tarantool.address", "127.0.0.1:3301")
	v.SetDefault("tarantool.timeout", time.Second)
	v.SetDefault("tarantool.reconnect", 3*time.Second)
	v.SetDefault("tarantool.max_reconnects", 5)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("outing-chat", pflag.ContinueOnError)
	fs.String("config_file", "", "Path to a YAML config file.")
	fs.String("level", "info", "Log level.")
	fs.String("session_id", "", "Outing the chat belongs to.")
	fs.String("viewer_id", "", "User the feed is shown to.")
	fs.String("output", "text", "Renderer output: text or json.")
	fs.Bool("demo", false, "Use the in-memory store with seeded data.")
	fs.String("redis_uri", "", "Redis URI for read markers, in-memory when empty.")
	fs.Duration("feed.interval", 3*time.Second, "Interval between feed ticks.")
	fs.Duration("feed.store_timeout", 10*time.Second, "Timeout of a single store call.")
	fs.Int("feed.workers", 4, "Workers running user actions.")
	fs.Int("feed.queue", 16, "Queued user actions before new ones are rejected.")
	fs.String("tarantool.address", "127.0.0.1:3301", "Tarantool address.")
	fs.String("tarantool.user", "", "Tarantool user.")
	fs.String("tarantool.password", "", "Tarantool password.")
	return fs
}

// Load merges flags, OUTING_* environment variables, the config file and
// defaults, highest priority first.
func Load(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SessionID == "" && !c.Demo {
		return errors.New("session id is not set")
	}
	if c.ViewerID == "" && !c.Demo {
		return errors.New("viewer id is not set")
	}
	switch c.Output {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output %q", c.Output)
	}
	if !c.Demo && c.Tarantool.User == "" {
		return errors.New("tarantool user is not set")
	}
	if !c.Demo && c.Tarantool.Password == "" {
		return errors.New("tarantool password is not set")
	}
	return nil
}

// InitLog applies the configured level and formatter to the standard logrus logger.
func (c *Config) InitLog() {
	if l, err := log.ParseLevel(c.Level); err == nil {
		log.SetLevel(l)
	}
	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "session", "viewer"},
	})
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(c.redacted()))
}

func (c *Config) redacted() Config {
	r := *c
	if r.Tarantool.Password != "" {
		r.Tarantool.Password = "***"
	}
	return r
}
