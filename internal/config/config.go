package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SecurityConfig struct {
	JWTSecret    string
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	TemporaryTTL time.Duration
	StateTTL     time.Duration
	SessionTTL   time.Duration
}

type SessionsConfig struct {
	// Backend selects the SessionStore adapter: "postgres" or "redis".
	Backend string
}

type AllowedDomain struct {
	Name string
	Apps []string
}

type DomainsConfig struct {
	Identity     string
	CookieDomain string
	LoginPath    string
	Allowed      []AllowedDomain
}

type AppInfoConfig struct {
	Title       string
	Description string
	LoginCopy   string
}

type AccessConfig struct {
	RolePermissions   map[string][]string
	AppRoles          map[string][]string
	AppReturnPaths    map[string]string
	DefaultReturnPath string
	AppInfo           map[string]AppInfoConfig
}

type CookieConfig struct {
	Secure bool
}

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type OAuthConfig struct {
	Google OAuthProviderConfig
	GitHub OAuthProviderConfig
}

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

type WorkerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	SweepSchedule string
	Retention     time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Sessions         SessionsConfig
	Domains          DomainsConfig
	Access           AccessConfig
	Cookies          CookieConfig
	OAuth            OAuthConfig
	RateLimit        RateLimitConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("AXL_AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *AppConfig) Validate() error {
	secret := strings.TrimSpace(c.Security.JWTSecret)
	if secret == "" {
		return errors.New("security.jwtsecret is required")
	}
	if c.IsProduction() && len(secret) < 32 {
		return errors.New("security.jwtsecret must be at least 32 bytes in production")
	}
	if len(c.Domains.Allowed) == 0 {
		return errors.New("domains.allowed must list at least one domain")
	}
	if strings.TrimSpace(c.Domains.Identity) == "" {
		return errors.New("domains.identity is required")
	}
	switch c.Sessions.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("sessions.backend must be postgres or redis, got %q", c.Sessions.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("security.jwtsecret", "")
	v.SetDefault("security.issuer", "axionslab-auth")
	v.SetDefault("security.accessttl", "15m")
	v.SetDefault("security.refreshttl", "720h") // 30 days
	v.SetDefault("security.temporaryttl", "5m")
	v.SetDefault("security.statettl", "10m")
	v.SetDefault("security.sessionttl", "720h")

	v.SetDefault("sessions.backend", "postgres")

	v.SetDefault("domains.identity", "axionslab.com")
	v.SetDefault("domains.cookiedomain", ".axionslab.com")
	v.SetDefault("domains.loginpath", "/login")
	v.SetDefault("domains.allowed", []map[string]any{
		{"name": "axionslab.com", "apps": []string{"main", "chat", "admin"}},
		{"name": "www.axionslab.com", "apps": []string{"main"}},
		{"name": "chat.axionslab.com", "apps": []string{"chat"}},
		{"name": "admin.axionslab.com", "apps": []string{"admin"}},
	})

	v.SetDefault("access.rolepermissions", map[string][]string{
		"user":        {"profile:read", "profile:write", "chat:use"},
		"enterprise":  {"profile:read", "profile:write", "chat:use", "org:read"},
		"admin":       {"profile:read", "profile:write", "chat:use", "org:read", "admin:read", "admin:write"},
		"super_admin": {"profile:read", "profile:write", "chat:use", "org:read", "org:write", "admin:read", "admin:write", "system:manage"},
	})
	v.SetDefault("access.approles", map[string][]string{
		"main":  {"user", "enterprise", "admin", "super_admin"},
		"chat":  {"user", "enterprise", "admin", "super_admin"},
		"admin": {"admin", "super_admin"},
	})
	v.SetDefault("access.appreturnpaths", map[string]string{
		"admin": "/dashboard",
		"chat":  "/",
	})
	v.SetDefault("access.defaultreturnpath", "/")
	v.SetDefault("access.appinfo", map[string]map[string]string{
		"main":  {"title": "Axions Lab", "description": "Your Axions Lab account", "logincopy": "Sign in to continue to Axions Lab"},
		"chat":  {"title": "Axions Chat", "description": "Conversational workspace", "logincopy": "Sign in to continue to Axions Chat"},
		"admin": {"title": "Axions Admin", "description": "Administration console", "logincopy": "Administrator sign in"},
	})

	v.SetDefault("cookies.secure", true)

	for _, provider := range []string{"google", "github"} {
		v.SetDefault("oauth."+provider+".clientid", "")
		v.SetDefault("oauth."+provider+".clientsecret", "")
		v.SetDefault("oauth."+provider+".redirecturi", "")
	}

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.limit", 20)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("worker.stream", "auth:maintenance")
	v.SetDefault("worker.group", "auth-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.sweepschedule", "0 0 * * * *")
	v.SetDefault("worker.retention", "168h")

	v.SetDefault("allowcorsorigins", []string{})
}
