package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("mode: dev\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.App.RegistrationTTL != 30*time.Minute {
		t.Errorf("registration_ttl default = %s", cfg.App.RegistrationTTL)
	}
	if cfg.Kiosk.Debounce != 3*time.Second {
		t.Errorf("debounce default = %s", cfg.Kiosk.Debounce)
	}
	if cfg.App.RollingWindowDays != 30 {
		t.Errorf("rolling_window_days default = %d", cfg.App.RollingWindowDays)
	}
	if cfg.DB.Driver != "mysql" {
		t.Errorf("driver default = %q", cfg.DB.Driver)
	}
	if cfg.Location().String() != "Asia/Tokyo" {
		t.Errorf("location = %s", cfg.Location())
	}
}

func TestParseDemoForcesMemory(t *testing.T) {
	cfg, err := Parse([]byte("mode: demo\ndatabase:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DB.Driver != "memory" {
		t.Errorf("demo mode must use memory driver, got %q", cfg.DB.Driver)
	}
}

func TestParseDurations(t *testing.T) {
	src := `
mode: release
kiosk:
  debounce: 1500ms
app:
  registration_ttl: 10m
jobs:
  daily_logout_at: "22:30"
`
	cfg, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Kiosk.Debounce != 1500*time.Millisecond {
		t.Errorf("debounce = %s", cfg.Kiosk.Debounce)
	}
	if cfg.App.RegistrationTTL != 10*time.Minute {
		t.Errorf("registration_ttl = %s", cfg.App.RegistrationTTL)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	bad := []string{
		"mode: prod\n",
		"mode: dev\ndatabase:\n  driver: sqlite\n",
		"mode: dev\napp:\n  timezone: Mars/Base\n",
		"mode: dev\njobs:\n  daily_logout_at: 25h\n",
	}
	for _, src := range bad {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}
