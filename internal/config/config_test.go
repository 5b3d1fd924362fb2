package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestViperConfig_Sub(t *testing.T) {
	v := viper.New()
	v.Set("monitor.retention_period", "720h")
	v.Set("monitor.content_validation.min_text_length", 50)

	cfg := New(v).Sub("monitor")
	if got := cfg.GetDuration("retention_period"); got != 720*time.Hour {
		t.Errorf("retention_period = %v, want 720h", got)
	}
	if got := cfg.Sub("content_validation").GetInt("min_text_length"); got != 50 {
		t.Errorf("min_text_length = %d, want 50", got)
	}
}

func TestViperConfig_SubMissingKey(t *testing.T) {
	cfg := New(nil).Sub("absent")
	if cfg == nil {
		t.Fatal("Sub() returned nil for missing key")
	}
	if cfg.IsSet("anything") {
		t.Error("IsSet() = true on empty config")
	}
}

func TestViperConfig_Unmarshal(t *testing.T) {
	v := viper.New()
	v.Set("brokers", []string{"a:9092", "b:9092"})
	v.Set("topic", "checks")

	var out struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	}
	if err := New(v).Unmarshal(&out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Brokers) != 2 || out.Topic != "checks" {
		t.Errorf("Unmarshal() = %+v", out)
	}
}
