// Package config wraps Viper behind a small interface so components read
// their own configuration subtree without importing viper directly.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config abstracts configuration access.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	IsSet(key string) bool
	Sub(key string) Config
}

// Compile-time interface guard.
var _ Config = (*ViperConfig)(nil)

// ViperConfig implements Config on top of a *viper.Viper.
type ViperConfig struct {
	v *viper.Viper
}

// New creates a Config backed by v. A nil v yields an empty configuration.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

func (c *ViperConfig) Get(key string) any {
	return c.v.Get(key)
}

func (c *ViperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *ViperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *ViperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

func (c *ViperConfig) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

func (c *ViperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Sub returns the subtree at key, or an empty Config when the key is unset.
func (c *ViperConfig) Sub(key string) Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return New(nil)
	}
	return New(sub)
}

// Viper returns the underlying instance for top-level keys such as server.port.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
