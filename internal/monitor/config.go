package monitor

import (
	"fmt"
	"time"

	"github.com/HerbHall/uptimed/internal/config"
	"github.com/HerbHall/uptimed/pkg/models"
)

// Config holds the monitoring service settings read from the "monitor"
// configuration subtree.
type Config struct {
	DefaultTimeout      time.Duration                  `mapstructure:"default_timeout"`
	MinInterval         time.Duration                  `mapstructure:"min_interval"`
	RetentionPeriod     time.Duration                  `mapstructure:"retention_period"`
	MaintenanceInterval time.Duration                  `mapstructure:"maintenance_interval"`
	HistoryWarmLimit    int                            `mapstructure:"history_warm_limit"`
	PersistTimeout      time.Duration                  `mapstructure:"persist_timeout"`
	ContentValidation   models.ContentValidationConfig `mapstructure:"content_validation"`
}

func DefaultConfig() Config {
	return Config{
		DefaultTimeout:      30 * time.Second,
		MinInterval:         time.Second,
		RetentionPeriod:     30 * 24 * time.Hour,
		MaintenanceInterval: 24 * time.Hour,
		HistoryWarmLimit:    2000,
		PersistTimeout:      10 * time.Second,
		ContentValidation: models.ContentValidationConfig{
			Enabled:          false,
			MinContentLength: 100,
			MinTextLength:    20,
		},
	}
}

// LoadConfig overlays cfg onto DefaultConfig. A nil cfg returns the defaults.
func LoadConfig(cfg config.Config) (Config, error) {
	out := DefaultConfig()
	if cfg == nil {
		return out, nil
	}
	if err := cfg.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unmarshal monitor config: %w", err)
	}
	if out.RetentionPeriod <= 0 {
		return out, fmt.Errorf("monitor.retention_period must be positive, got %s", out.RetentionPeriod)
	}
	if out.MaintenanceInterval <= 0 {
		return out, fmt.Errorf("monitor.maintenance_interval must be positive, got %s", out.MaintenanceInterval)
	}
	return out, nil
}
