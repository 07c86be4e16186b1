package config

import (
	"reflect"
	"testing"
	"time"
)

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty allows all", raw: "", want: nil},
		{name: "single", raw: "http://a.test", want: []string{"http://a.test"}},
		{name: "trims and skips blanks", raw: " http://a.test , ,http://b.test ", want: []string{"http://a.test", "http://b.test"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseOrigins(tc.raw); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseOrigins(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("JWT_EXPIRY_HOURS", "2")
	t.Setenv("AUTH_RATE_LIMIT", "not-a-number")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SMTP_HOST", "smtp.example.test")

	cfg := Load()

	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("JWTExpiry = %v, want 2h", cfg.JWTExpiry)
	}
	if cfg.AuthRateLimit != 30 {
		t.Errorf("AuthRateLimit = %d, want fallback 30", cfg.AuthRateLimit)
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled = true, want false")
	}
	if cfg.SMTP.Host != "smtp.example.test" || cfg.SMTP.Port != 587 {
		t.Errorf("SMTP = %+v", cfg.SMTP)
	}
}
