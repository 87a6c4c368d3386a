package app

import (
	"testing"

	"agentsched/internal/config"
)

func TestMapManagerConfigTimezone(t *testing.T) {
	cfg := &config.Config{}
	cfg.Manager.Timezone = "Asia/Jakarta"
	mc, err := mapManagerConfig(cfg)
	if err != nil {
		t.Fatalf("mapManagerConfig: %v", err)
	}
	if mc.Location == nil || mc.Location.String() != "Asia/Jakarta" {
		t.Fatalf("location = %v, want Asia/Jakarta", mc.Location)
	}
}

func TestMapManagerConfigRejectsUnknownTimezone(t *testing.T) {
	cfg := &config.Config{}
	cfg.Manager.Timezone = "Mars/Olympus_Mons"
	if _, err := mapManagerConfig(cfg); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestMapManagerConfigDefaults(t *testing.T) {
	cfg := &config.Config{}
	mc, err := mapManagerConfig(cfg)
	if err != nil {
		t.Fatalf("mapManagerConfig: %v", err)
	}
	if mc.Location != nil {
		t.Fatalf("empty timezone must mean local time, got %v", mc.Location)
	}
	if mc.PollInterval.String() != "1s" {
		t.Fatalf("default poll interval = %v, want 1s", mc.PollInterval)
	}
}
