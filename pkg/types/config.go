package types

import (
	"time"
)

// Mode constants for gateway operation
const (
	ModeLocal  = "local"  // No Redis/Postgres, in-memory backend
	ModeRemote = "remote" // Full infrastructure
)

// AppConfig is the root configuration for the gmail sync gateway
type AppConfig struct {
	Mode       string `key:"mode" json:"mode"` // "local" or "remote"
	DebugMode  bool   `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool   `key:"prettyLogs" json:"pretty_logs"`

	Database    DatabaseConfig    `key:"database" json:"database"`
	Gateway     GatewayConfig     `key:"gateway" json:"gateway"`
	OAuth       OAuthConfig       `key:"oauth" json:"oauth"`
	Gmail       GmailConfig       `key:"gmail" json:"gmail"`
	Ingest      IngestConfig      `key:"ingest" json:"ingest"`
	Scheduler   SchedulerConfig   `key:"scheduler" json:"scheduler"`
	Auth        AuthConfig        `key:"auth" json:"auth"`
	Credentials CredentialsConfig `key:"credentials" json:"credentials"`
}

// IsLocalMode returns true if running in local mode (no Redis/Postgres)
func (c *AppConfig) IsLocalMode() bool {
	return c.Mode == ModeLocal
}

// ----------------------------------------------------------------------------
// Database Configuration
// ----------------------------------------------------------------------------

type DatabaseConfig struct {
	Redis    RedisConfig    `key:"redis" json:"redis"`
	Postgres PostgresConfig `key:"postgres" json:"postgres"`
}

type RedisMode string

const (
	RedisModeSingle  RedisMode = "single"
	RedisModeCluster RedisMode = "cluster"
)

type RedisConfig struct {
	Mode               RedisMode     `key:"mode" json:"mode"`
	Addrs              []string      `key:"addrs" json:"addrs"`
	Username           string        `key:"username" json:"username"`
	Password           string        `key:"password" json:"password"`
	ClientName         string        `key:"clientName" json:"client_name"`
	EnableTLS          bool          `key:"enableTLS" json:"enable_tls"`
	InsecureSkipVerify bool          `key:"insecureSkipVerify" json:"insecure_skip_verify"`
	PoolSize           int           `key:"poolSize" json:"pool_size"`
	MinIdleConns       int           `key:"minIdleConns" json:"min_idle_conns"`
	ConnMaxIdleTime    time.Duration `key:"connMaxIdleTime" json:"conn_max_idle_time"`
	DialTimeout        time.Duration `key:"dialTimeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `key:"readTimeout" json:"read_timeout"`
	WriteTimeout       time.Duration `key:"writeTimeout" json:"write_timeout"`
	MaxRetries         int           `key:"maxRetries" json:"max_retries"`
}

// IsConfigured returns true if at least one redis address is set
func (c RedisConfig) IsConfigured() bool {
	return len(c.Addrs) > 0 && c.Addrs[0] != ""
}

type PostgresConfig struct {
	Host            string        `key:"host" json:"host"`
	Port            int           `key:"port" json:"port"`
	User            string        `key:"user" json:"user"`
	Password        string        `key:"password" json:"password"`
	Database        string        `key:"database" json:"database"`
	SSLMode         string        `key:"sslMode" json:"ssl_mode"`
	MaxOpenConns    int           `key:"maxOpenConns" json:"max_open_conns"`
	MaxIdleConns    int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
}

// ----------------------------------------------------------------------------
// Gateway Configuration
// ----------------------------------------------------------------------------

type GatewayConfig struct {
	HTTP            HTTPConfig    `key:"http" json:"http"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`
}

type HTTPConfig struct {
	Host             string     `key:"host" json:"host"`
	Port             int        `key:"port" json:"port"`
	EnablePrettyLogs bool       `key:"enablePrettyLogs" json:"enable_pretty_logs"`
	CORS             CORSConfig `key:"cors" json:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `key:"allowOrigins" json:"allow_origins"`
	AllowedMethods []string `key:"allowMethods" json:"allow_methods"`
	AllowedHeaders []string `key:"allowHeaders" json:"allow_headers"`
}

// ----------------------------------------------------------------------------
// OAuth Configuration
// ----------------------------------------------------------------------------

// OAuthConfig configures the Gmail authorization and token refresh
type OAuthConfig struct {
	Google        GoogleOAuthConfig `key:"google" json:"google"`
	RefreshBuffer time.Duration     `key:"refreshBuffer" json:"refresh_buffer"` // Refresh when expiry is within this window
	SessionTTL    time.Duration     `key:"sessionTTL" json:"session_ttl"`
}

// GoogleOAuthConfig configures Google OAuth for the Gmail connection
type GoogleOAuthConfig struct {
	ClientID     string   `key:"clientId" json:"client_id"`
	ClientSecret string   `key:"clientSecret" json:"client_secret"`
	RedirectURL  string   `key:"redirectUrl" json:"redirect_url"` // e.g., http://localhost:1994/api/v1/gmail/oauth/callback
	Scopes       []string `key:"scopes" json:"scopes"`
	AuthURL      string   `key:"authUrl" json:"auth_url"`   // Optional override, defaults to Google's endpoint
	TokenURL     string   `key:"tokenUrl" json:"token_url"` // Optional override, defaults to Google's endpoint
}

// ----------------------------------------------------------------------------
// Gmail / Ingest Configuration
// ----------------------------------------------------------------------------

// GmailConfig configures the provider client
type GmailConfig struct {
	Endpoint          string        `key:"endpoint" json:"endpoint"` // Optional API base override
	RequestTimeout    time.Duration `key:"requestTimeout" json:"request_timeout"`
	RequestsPerSecond float64       `key:"requestsPerSecond" json:"requests_per_second"`
	BurstSize         int           `key:"burstSize" json:"burst_size"`
}

// IngestConfig bounds a single sync run
type IngestConfig struct {
	PageSize        int64         `key:"pageSize" json:"page_size"`
	MaxPages        int           `key:"maxPages" json:"max_pages"`
	LockTTL         time.Duration `key:"lockTTL" json:"lock_ttl"`
	LinkCacheSize   int           `key:"linkCacheSize" json:"link_cache_size"`
	LinkCacheTTL    time.Duration `key:"linkCacheTTL" json:"link_cache_ttl"`
	FreeMailDomains []string      `key:"freeMailDomains" json:"free_mail_domains"`
}

// SchedulerConfig configures background syncs
type SchedulerConfig struct {
	Enabled     bool          `key:"enabled" json:"enabled"`
	Interval    time.Duration `key:"interval" json:"interval"`
	Concurrency int           `key:"concurrency" json:"concurrency"`
}

// AuthConfig configures the bearer token issued by the CRM
type AuthConfig struct {
	JWTSecret string `key:"jwtSecret" json:"jwt_secret"`
	Issuer    string `key:"issuer" json:"issuer"`
}

// CredentialsConfig configures sealing of stored OAuth tokens
type CredentialsConfig struct {
	EncryptionKey string `key:"encryptionKey" json:"encryption_key"` // hex encoded, 32 bytes
}
