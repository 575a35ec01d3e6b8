package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"EconPulse/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Logging struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled         bool          `yaml:"enabled"`
			Topic           string        `yaml:"topic" default:"econpulse.logs"`
			Interval        time.Duration `yaml:"interval" default:"30s"`
			Threshold       int           `yaml:"threshold" default:"100"`
			IncludeWarnings bool          `yaml:"include_warnings"`
		} `yaml:"collector"`
	} `yaml:"logging"`

	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
	} `yaml:"server"`

	Scheduler struct {
		Interval        time.Duration `yaml:"interval" default:"2m"`
		StartDelay      time.Duration `yaml:"start_delay" default:"5s"`
		BatchSize       int           `yaml:"batch_size" default:"20"`
		BatchPause      time.Duration `yaml:"batch_pause" default:"1s"`
		DistributedLock bool          `yaml:"distributed_lock"`
		LockTTL         time.Duration `yaml:"lock_ttl"`
	} `yaml:"scheduler"`

	Windows struct {
		ReminderLead   time.Duration `yaml:"reminder_lead" default:"15m"`
		ReminderWidth  time.Duration `yaml:"reminder_width" default:"5m"`
		ResultDelay    time.Duration `yaml:"result_delay"`
		ResultDuration time.Duration `yaml:"result_duration" default:"30m"`
		DigestHour     int           `yaml:"digest_hour" default:"7"`
		DigestWindow   time.Duration `yaml:"digest_window" default:"10m"`
		QuietStart     int           `yaml:"quiet_start" default:"23"`
		QuietEnd       int           `yaml:"quiet_end" default:"7"`
	} `yaml:"windows"`

	ViewCache struct {
		TTL time.Duration `yaml:"ttl" default:"90s"`
	} `yaml:"view_cache"`

	Dedupe struct {
		Precedence []string `yaml:"precedence"`
	} `yaml:"dedupe"`

	Quality struct {
		Enabled bool   `yaml:"enabled"`
		Mode    string `yaml:"mode" default:"strict"`
	} `yaml:"quality"`

	Sources struct {
		ForexFactory struct {
			Enabled   bool          `yaml:"enabled"`
			Feeds     []string      `yaml:"feeds"`
			Timezone  string        `yaml:"timezone" default:"America/New_York"`
			CacheTTL  time.Duration `yaml:"cache_ttl" default:"10m"`
			Burst     float64       `yaml:"burst" default:"2"`
			PerMinute float64       `yaml:"per_minute" default:"1"`
		} `yaml:"forexfactory"`
		Kafka struct {
			Enabled  bool          `yaml:"enabled"`
			ID       string        `yaml:"id" default:"myfxbook"`
			Topic    string        `yaml:"topic" default:"econpulse.calendar.raw"`
			Timezone string        `yaml:"timezone" default:"UTC"`
			MaxAge   time.Duration `yaml:"max_age" default:"1h"`
		} `yaml:"kafka"`
	} `yaml:"sources"`

	News struct {
		Enabled           bool          `yaml:"enabled"`
		MaxAge            time.Duration `yaml:"max_age" default:"2h"`
		RespectQuietHours bool          `yaml:"respect_quiet_hours"`
		RSS               []RSSFeed     `yaml:"rss"`
		Finnhub           struct {
			Enabled        bool          `yaml:"enabled"`
			APIKey         string        `yaml:"api_key"`
			WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
			Symbols        []string      `yaml:"symbols"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
			PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		} `yaml:"finnhub"`
	} `yaml:"news"`

	Telegram struct {
		Token       string        `yaml:"token"`
		BaseURL     string        `yaml:"base_url" default:"https://api.telegram.org"`
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
		GlobalRate  float64       `yaml:"global_rate" default:"25"`
		PerChatRate float64       `yaml:"per_chat_rate" default:"1"`
		ParseMode   string        `yaml:"parse_mode" default:"HTML"`
		DryRun      bool          `yaml:"dry_run"`
	} `yaml:"telegram"`

	AI struct {
		Enabled  bool          `yaml:"enabled"`
		Provider string        `yaml:"provider" default:"http"`
		BaseURL  string        `yaml:"base_url"`
		APIKey   string        `yaml:"api_key"`
		Models   []string      `yaml:"models"`
		Timeout  time.Duration `yaml:"timeout" default:"30s"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"24h"`
		Bedrock  struct {
			Region  string `yaml:"region" default:"us-east-1"`
			ModelID string `yaml:"model_id"`
		} `yaml:"bedrock"`
	} `yaml:"ai"`

	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"20"`
		Prefix   string `yaml:"prefix" default:"econpulse"`
		L1Size   int    `yaml:"l1_size" default:"2048"`
	} `yaml:"redis"`

	Settings struct {
		Store string `yaml:"store" default:"redis"`
		// Intake consumes settings updates that front-ends push to Redis.
		Intake struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers" default:"1"`
			RetryLimit int           `yaml:"retry_limit" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		} `yaml:"intake"`
	} `yaml:"settings"`

	Marks struct {
		Retention time.Duration `yaml:"retention" default:"72h"`
	} `yaml:"marks"`

	Kafka struct {
		Brokers     []string `yaml:"brokers"`
		Compression string   `yaml:"compression" default:"snappy"`
		GroupID     string   `yaml:"group_id" default:"econpulse"`
		Workers     int      `yaml:"workers" default:"1"`
		DLQTopic    string   `yaml:"dlq_topic"`
		AuditTopic  string   `yaml:"audit_topic"`
		MaxPayload  int      `yaml:"max_payload" default:"1048576"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"econpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

type RSSFeed struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"keywords"`
	MaxItems int      `yaml:"max_items" default:"20"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, overrides secrets and endpoints from
// the environment, then validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.News.Finnhub.APIKey = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Slice elements are only known after decoding.
	for i := range c.News.RSS {
		if err := defaults.Set(&c.News.RSS[i]); err != nil {
			return nil, fmt.Errorf("config defaults: %w", err)
		}
	}
	if c.Scheduler.LockTTL <= 0 {
		c.Scheduler.LockTTL = c.Scheduler.Interval
	}
	return &c, nil
}

// Validate checks required fields, enum values and the timing invariants
// the scheduler depends on.
func (c *Config) Validate() error {
	tick := c.Scheduler.Interval
	if tick <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive")
	}
	for name, w := range map[string]time.Duration{
		"windows.reminder_width":  c.Windows.ReminderWidth,
		"windows.result_duration": c.Windows.ResultDuration,
		"windows.digest_window":   c.Windows.DigestWindow,
	} {
		if w < 2*tick {
			return fmt.Errorf("%s (%s) must be at least twice scheduler.interval (%s)", name, w, tick)
		}
	}
	if c.ViewCache.TTL <= 0 || c.ViewCache.TTL >= tick {
		return fmt.Errorf("view_cache.ttl (%s) must be positive and shorter than scheduler.interval (%s)", c.ViewCache.TTL, tick)
	}

	if err := oneOf("logging.format", c.Logging.Format, "json", "console"); err != nil {
		return err
	}
	if err := oneOf("quality.mode", c.Quality.Mode, "strict", "lenient"); err != nil {
		return err
	}
	if err := oneOf("settings.store", c.Settings.Store, "redis", "clickhouse"); err != nil {
		return err
	}
	if err := oneOf("ai.provider", c.AI.Provider, "http", "bedrock"); err != nil {
		return err
	}

	if !c.Sources.ForexFactory.Enabled && !c.Sources.Kafka.Enabled {
		return fmt.Errorf("at least one calendar source must be enabled")
	}
	if c.Sources.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required by sources.kafka")
	}
	if (c.Kafka.AuditTopic != "" || c.Logging.Collector.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the audit topic and log collector")
	}
	if !c.Telegram.DryRun && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required unless telegram.dry_run is set")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Settings.Store == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required by settings.store=clickhouse")
	}
	if c.AI.Enabled && c.AI.Provider == "http" && (c.AI.BaseURL == "" || len(c.AI.Models) == 0) {
		return fmt.Errorf("ai.base_url and ai.models are required by the http provider")
	}
	if c.News.Finnhub.Enabled && c.News.Finnhub.APIKey == "" {
		return fmt.Errorf("news.finnhub.api_key is required")
	}
	for i, f := range c.News.RSS {
		if f.Name == "" || f.URL == "" {
			return fmt.Errorf("news.rss[%d] needs a name and a url", i)
		}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value)
}
