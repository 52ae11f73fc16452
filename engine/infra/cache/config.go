package cache

import (
	"crypto/tls"
	"time"
)

// Config describes a Redis connection. URL takes precedence over Host/Port.
type Config struct {
	URL         string        `json:"url,omitempty"          yaml:"url,omitempty"          mapstructure:"url"`
	Host        string        `json:"host,omitempty"         yaml:"host,omitempty"         mapstructure:"host"`
	Port        string        `json:"port,omitempty"         yaml:"port,omitempty"         mapstructure:"port"`
	Password    string        `json:"password,omitempty"     yaml:"password,omitempty"     mapstructure:"password"`
	DB          int           `json:"db,omitempty"           yaml:"db,omitempty"           mapstructure:"db"`
	PoolSize    int           `json:"pool_size,omitempty"    yaml:"pool_size,omitempty"    mapstructure:"pool_size"`
	TLSEnabled  bool          `json:"tls_enabled,omitempty"  yaml:"tls_enabled,omitempty"  mapstructure:"tls_enabled"`
	TLSConfig   *tls.Config   `json:"-"                      yaml:"-"                      mapstructure:"-"`
	DialTimeout time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty" mapstructure:"read_timeout"`
	PingTimeout time.Duration `json:"ping_timeout,omitempty" yaml:"ping_timeout,omitempty" mapstructure:"ping_timeout"`
	MaxRetries  int           `json:"max_retries,omitempty"  yaml:"max_retries,omitempty"  mapstructure:"max_retries"`
}

// FromURL builds a config for a redis:// or rediss:// connection string.
func FromURL(url string) *Config {
	return &Config{URL: url}
}
