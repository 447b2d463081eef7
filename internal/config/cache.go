package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.  Only
// responses that never change once written are routed through it.
type CacheConfig struct {
	Enabled      bool          `envconfig:"CACHE_ENABLED" default:"true"`
	MethodList   string        `envconfig:"CACHE_METHODS" default:"GET"`
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	Prefix       string        `envconfig:"CACHE_PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"CACHE_MAX_BODY_BYTES" default:"1048576"`

	Methods map[string]bool `ignored:"true"`
}

func (c CacheConfig) normalize() CacheConfig {
	c.Methods = map[string]bool{}
	for _, p := range strings.Split(c.MethodList, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			c.Methods[p] = true
		}
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Prefix == "" {
		c.Prefix = "cache"
	}
	return c
}
