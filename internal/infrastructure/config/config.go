package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Chrome    ChromeConfig
	Proxy     ProxyConfig
	Version   VersionConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds the HTTP control surface configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"6000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// ChromeConfig holds browser launch configuration.
type ChromeConfig struct {
	Path    string `envconfig:"CHROME_PATH"`
	Address string `envconfig:"CHROME_ADDRESS" default:"127.0.0.1"`
	Port    uint32 `envconfig:"DEFAULT_PORT" default:"9223"`
	Init    bool   `envconfig:"CHROME_INIT" default:"true"`

	// Args is a comma separated list appended to the launch arguments.
	Args               string `envconfig:"CHROME_ARGS"`
	Headless           string `envconfig:"HEADLESS" default:"true"`
	GPU                bool   `envconfig:"ENABLE_GPU" default:"false"`
	GL                 string `envconfig:"CHROME_GL"`
	NoArgs             bool   `envconfig:"TEST_NO_ARGS" default:"false"`
	Brave              bool   `envconfig:"BRAVE_ENABLED" default:"false"`
	RenderProcessLimit int    `envconfig:"RENDER_PROCESS_LIMIT" default:"0"`
}

// ProxyConfig holds the rewrite proxy configuration.
type ProxyConfig struct {
	Enabled bool `envconfig:"PROXY_ENABLED" default:"true"`
	// Port is the external port. Zero derives it from the debug port.
	Port           uint32 `envconfig:"PROXY_PORT" default:"0"`
	BufferSize     int    `envconfig:"BUFFER_SIZE" default:"131072"`
	MaxConnections int    `envconfig:"PROXY_MAX_CONNECTIONS" default:"0"`
}

// VersionConfig holds /json/version configuration.
type VersionConfig struct {
	HostnameOverride string        `envconfig:"HOSTNAME_OVERRIDE"`
	Hostname         string        `envconfig:"HOSTNAME"`
	DebugJSON        bool          `envconfig:"DEBUG_JSON" default:"false"`
	CacheTTL         time.Duration `envconfig:"CACHE_TTL" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// Scope is "ip" for one budget per client or "global" for one shared budget
	Scope string `envconfig:"RATE_LIMIT_SCOPE" default:"ip"`
}

// Rate limit scopes
const (
	RateLimitPerIP  = "ip"
	RateLimitGlobal = "global"
)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "6000",
			Host: "0.0.0.0",
		},
		Chrome: ChromeConfig{
			Address:  "127.0.0.1",
			Port:     9223,
			Init:     true,
			Headless: "true",
		},
		Proxy: ProxyConfig{
			Enabled:    true,
			BufferSize: 131072,
		},
		Version: VersionConfig{
			CacheTTL: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			Scope:             RateLimitPerIP,
		},
	}
}

// Validate rejects configurations the proxy cannot run with.
func (c *Config) Validate() error {
	if c.Chrome.Port == 0 || c.Chrome.Port > 65535 {
		return fmt.Errorf("invalid DEFAULT_PORT: %d", c.Chrome.Port)
	}
	if s := c.RateLimit.Scope; s != RateLimitPerIP && s != RateLimitGlobal {
		return fmt.Errorf("invalid RATE_LIMIT_SCOPE: %q", s)
	}
	if c.Proxy.BufferSize <= 0 {
		return fmt.Errorf("invalid BUFFER_SIZE: %d", c.Proxy.BufferSize)
	}
	if c.Proxy.Enabled {
		listen := c.ProxyListenPort()
		if listen == 0 || listen > 65535 || listen == c.Chrome.Port {
			return fmt.Errorf("invalid proxy port %d for debug port %d", listen, c.Chrome.Port)
		}
		if len(strconv.Itoa(int(listen))) != len(strconv.Itoa(int(c.Chrome.Port))) {
			return fmt.Errorf("proxy port %d and debug port %d must have the same number of digits", listen, c.Chrome.Port)
		}
	}
	return nil
}

// Host returns the host used to rewrite webSocketDebuggerUrl.
// HOSTNAME_OVERRIDE wins over HOSTNAME.
func (v VersionConfig) Host() string {
	if v.HostnameOverride != "" {
		return v.HostnameOverride
	}
	return v.Hostname
}

// Endpoint returns the default /json/version URL of the local instance.
func (c ChromeConfig) Endpoint() string {
	return fmt.Sprintf("http://%s/json/version", net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port))))
}

// ProxyListenPort returns the external proxy port. The default sits one
// below the debug port (9223 -> 9222, 9224 -> 9223).
func (c *Config) ProxyListenPort() uint32 {
	if c.Proxy.Port != 0 {
		return c.Proxy.Port
	}
	return c.Chrome.Port - 1
}

// ProxyListenAddr returns the address the proxy listens on.
func (c *Config) ProxyListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(int(c.ProxyListenPort())))
}

// ProxyTargetAddr returns the browser debug address the proxy relays to.
func (c *Config) ProxyTargetAddr() string {
	return net.JoinHostPort(c.Chrome.Address, strconv.Itoa(int(c.Chrome.Port)))
}

// ServerAddr returns the HTTP control surface address.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// ApplyArgs overrides the configuration with positional arguments:
//
//	[chrome-path] [chrome-address] [init|ignore] [debug-port] [server-port] [headless]
//
// Empty entries and zero ports keep the current value.
func (c *Config) ApplyArgs(args []string) error {
	for i, arg := range args {
		if arg == "" {
			continue
		}
		switch i {
		case 0:
			c.Chrome.Path = arg
		case 1:
			c.Chrome.Address = arg
		case 2:
			c.Chrome.Init = arg == "init"
		case 3:
			port, err := strconv.ParseUint(arg, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid debug port %q: %w", arg, err)
			}
			if port != 0 {
				c.Chrome.Port = uint32(port)
			}
		case 4:
			port, err := strconv.ParseUint(arg, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid server port %q: %w", arg, err)
			}
			if port != 0 {
				c.Server.Port = arg
			}
		case 5:
			c.Chrome.Headless = arg
		}
	}
	return c.Validate()
}
