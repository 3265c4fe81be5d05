package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"Pattas/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"local" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"3000" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 keeps analysis streams open
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
	} `yaml:"metrics"`
	Storage struct {
		DatabasePath string        `yaml:"database_path" default:"/Volumes/vibecoding/pattas_list/pattas_list.db" validate:"required"`
		NewsPath     string        `yaml:"news_path" default:"/Volumes/vibecoding/pattas_list/news_links.json" validate:"required"`
		BusyTimeout  time.Duration `yaml:"busy_timeout" default:"5s"`
	} `yaml:"storage"`
	Runner struct {
		Command      string            `yaml:"command" default:"uv run python -u market_update_graph.py" validate:"required"`
		Dir          string            `yaml:"dir" default:"/Volumes/vibecoding/pattas_list" validate:"required"`
		Env          map[string]string `yaml:"env"`
		Timeout      time.Duration     `yaml:"timeout"` // 0 = no timeout
		WaitDelay    time.Duration     `yaml:"wait_delay" default:"5s"`
		Exclusive    bool              `yaml:"exclusive" default:"true"`
		LockTTL      time.Duration     `yaml:"lock_ttl" default:"30m" validate:"min=1s"`
		ReadBuffer   int               `yaml:"read_buffer" default:"4096" validate:"min=1"`
		QueueSize    int               `yaml:"queue_size" default:"64" validate:"min=1"`
		CompleteHold time.Duration     `yaml:"complete_hold" default:"3s"`
		HistorySize  int               `yaml:"history_size" default:"100" validate:"min=1"`
	} `yaml:"runner"`
	RateLimit struct {
		Enabled   bool    `yaml:"enabled"`
		Burst     float64 `yaml:"burst" default:"2" validate:"gt=0"`
		PerMinute float64 `yaml:"per_minute" default:"6" validate:"gt=0"`
	} `yaml:"rate_limit"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"pattas"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		EventsTopic  string   `yaml:"events_topic" default:"pattas.runs"`
		LogsTopic    string   `yaml:"logs_topic"`
		ScanTopic    string   `yaml:"scan_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchSize    int           `yaml:"batch_size" default:"10"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"pattas-dashboard"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"pattas"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
}

var validate = validator.New()

// Default returns a config populated only with defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Defaults are applied
// first so that explicit zero values in the file (e.g. exclusive: false) win.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func applyEnvOverrides(c *Config) {
	c.Server.Port = util.ParseIntDefault(os.Getenv("PORT"), c.Server.Port)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PATTAS_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("PATTAS_NEWS_PATH"); v != "" {
		c.Storage.NewsPath = v
	}
	if v := os.Getenv("PATTAS_RUNNER_DIR"); v != "" {
		c.Runner.Dir = v
	}
	if v := os.Getenv("PATTAS_RUNNER_COMMAND"); v != "" {
		c.Runner.Command = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.CommandArgs(); err != nil {
		return err
	}
	return nil
}

// CommandArgs splits runner.command the way a POSIX shell would.
func (c *Config) CommandArgs() ([]string, error) {
	args, err := shellquote.Split(c.Runner.Command)
	if err != nil {
		return nil, fmt.Errorf("runner.command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("runner.command is empty")
	}
	return args, nil
}

// RunnerEnv returns runner.env as KEY=VALUE pairs in a stable order.
func (c *Config) RunnerEnv() []string {
	keys := make([]string, 0, len(c.Runner.Env))
	for k := range c.Runner.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Runner.Env[k])
	}
	return env
}
