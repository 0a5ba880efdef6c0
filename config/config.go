package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Twitter  TwitterConfig  `mapstructure:"twitter"`
	Quest    QuestConfig    `mapstructure:"quest"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Debug           bool          `mapstructure:"debug"`
	AdminKey        string        `mapstructure:"admin_key"`
	AdminIPs        []string      `mapstructure:"admin_ips"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	FrontendURL     string        `mapstructure:"frontend_url"` // Discord callback redirects here
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
}

type SecurityConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	JWTTTLH    time.Duration `mapstructure:"jwt_ttl_h"`
	CookieName string        `mapstructure:"cookie_name"`
	NonceTTL   time.Duration `mapstructure:"nonce_ttl"`
	// TokenKey seals third-party OAuth tokens at rest. Empty disables sealing.
	TokenKey       string  `mapstructure:"token_key"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// IPv6Subnet is the prefix length IPv6 callers are grouped by when keying limiters.
	IPv6Subnet int          `mapstructure:"ipv6_subnet"`
	SignIn     WindowConfig `mapstructure:"signin"`
}

// WindowConfig bounds a caller to Max requests per Window.
type WindowConfig struct {
	Window  time.Duration `mapstructure:"window"`
	Max     int           `mapstructure:"max"`
	Message string        `mapstructure:"message"`
}

type DiscordConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type TwitterConfig struct {
	APIURL    string `mapstructure:"api_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	TokenURL  string `mapstructure:"token_url"`
}

type QuestConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Load reads config from the given YAML file path. Every key can be
// overridden from the environment, e.g. NEXURA_SECURITY_JWT_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("nexura")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.frontend_url", "http://localhost:5173")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/nexura.db")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.key_prefix", "nexura:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.cookie_name", "nexura_session")
	v.SetDefault("security.nonce_ttl", "5m")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.ipv6_subnet", 56)
	v.SetDefault("security.signin.window", "3h")
	v.SetDefault("security.signin.max", 3)
	v.SetDefault("security.signin.message", "too many sign-in attempts, please try again later")
	v.SetDefault("discord.scopes", []string{"identify", "guilds"})
	v.SetDefault("twitter.api_url", "https://api.twitter.com")
	v.SetDefault("twitter.token_url", "https://api.twitter.com/oauth2/token")
	v.SetDefault("quest.sweep_interval", "10m")
}
