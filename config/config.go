package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/npcsense/game/ai"
	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Perception PerceptionConfig `mapstructure:"perception"`
	Driver     ai.DriverConfig  `mapstructure:"driver"`
	Journal    JournalConfig    `mapstructure:"journal"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// Zones are created at startup; more can be created over the API.
	Zones []int `mapstructure:"zones"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type PerceptionConfig struct {
	TickMs          int                      `mapstructure:"tick_ms"`
	SenseEveryTicks int                      `mapstructure:"sense_every_ticks"`
	QueueSize       int                      `mapstructure:"queue_size"`
	BlackboardTTL   time.Duration            `mapstructure:"blackboard_ttl"`
	HistoryKeep     int                      `mapstructure:"history_keep"`
	Sight           perception.SightConfig   `mapstructure:"sight"`
	Hearing         perception.HearingConfig `mapstructure:"hearing"`
}

// TickInterval returns the zone tick as a duration.
func (p PerceptionConfig) TickInterval() time.Duration {
	return time.Duration(p.TickMs) * time.Millisecond
}

type JournalConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Retention     time.Duration `mapstructure:"retention"` // 0 keeps everything
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// AdminIPs restricts the operator API to these IPs or CIDRs when set.
	AdminIPs []string `mapstructure:"admin_ips"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(v)
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	sight := perception.DefaultSightConfig()
	hearing := perception.DefaultHearingConfig()
	drv := ai.DefaultDriverConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.zones", []int{1})
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/npcsense.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)

	v.SetDefault("perception.tick_ms", 50)
	v.SetDefault("perception.sense_every_ticks", 4)
	v.SetDefault("perception.queue_size", 256)
	v.SetDefault("perception.blackboard_ttl", "10m")
	v.SetDefault("perception.history_keep", 50)
	v.SetDefault("perception.sight.radius", sight.Radius)
	v.SetDefault("perception.sight.lose_radius", sight.LoseRadius)
	v.SetDefault("perception.sight.peripheral_angle_deg", sight.PeripheralAngleDeg)
	v.SetDefault("perception.sight.filter.enemies", sight.Filter.Enemies)
	v.SetDefault("perception.sight.filter.neutrals", sight.Filter.Neutrals)
	v.SetDefault("perception.sight.filter.friendlies", sight.Filter.Friendlies)
	v.SetDefault("perception.sight.dominant", sight.Dominant)
	v.SetDefault("perception.hearing.range", hearing.Range)
	v.SetDefault("perception.hearing.filter.enemies", hearing.Filter.Enemies)
	v.SetDefault("perception.hearing.filter.neutrals", hearing.Filter.Neutrals)
	v.SetDefault("perception.hearing.filter.friendlies", hearing.Filter.Friendlies)
	v.SetDefault("perception.hearing.dominant", hearing.Dominant)

	v.SetDefault("driver.search_timeout", drv.SearchTimeout.String())
	v.SetDefault("driver.investigate_timeout", drv.InvestigateTimeout.String())
	v.SetDefault("driver.arrive_radius", drv.ArriveRadius)
	v.SetDefault("driver.home_radius", drv.HomeRadius)

	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", "1s")
	v.SetDefault("journal.retention", "168h")

	v.SetDefault("security.jwt_ttl_h", "12h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if c.Perception.TickMs <= 0 {
		return fmt.Errorf("%w: perception.tick_ms must be positive", ErrInvalidConfig)
	}
	if c.Perception.SenseEveryTicks <= 0 {
		return fmt.Errorf("%w: perception.sense_every_ticks must be positive", ErrInvalidConfig)
	}
	if err := c.Perception.Sight.Validate(); err != nil {
		return fmt.Errorf("%w: perception.sight: %w", ErrInvalidConfig, err)
	}
	if err := c.Perception.Hearing.Validate(); err != nil {
		return fmt.Errorf("%w: perception.hearing: %w", ErrInvalidConfig, err)
	}
	if c.Perception.Sight.Dominant && c.Perception.Hearing.Dominant {
		return fmt.Errorf("%w: only one sense may be dominant", ErrInvalidConfig)
	}
	switch c.Database.Mode {
	case "sqlite", "sqlite_memory", "mysql":
	default:
		return fmt.Errorf("%w: unknown database.mode %q", ErrInvalidConfig, c.Database.Mode)
	}
	return nil
}
