package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENVIRONMENT", "ALLOWED_ORIGINS", "REQUIRE_AUTH",
		"ROOM_TTL_HOURS", "STUN_SERVERS", "REDIS_HOST", "REDIS_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.RequireAuth {
		t.Error("RequireAuth defaults to true, want false")
	}
	if cfg.RoomTTL != 24*time.Hour {
		t.Errorf("RoomTTL = %v, want 24h", cfg.RoomTTL)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two localhost defaults", cfg.AllowedOrigins)
	}
	if len(cfg.StunServers) != 1 || cfg.StunServers[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("StunServers = %v", cfg.StunServers)
	}
	if cfg.Redis.Host != "localhost" || cfg.Redis.Port != "6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example,https://c.example")
	t.Setenv("REQUIRE_AUTH", "true")
	t.Setenv("ROOM_TTL_HOURS", "48")
	t.Setenv("STUN_SERVERS", "stun:one:3478,stun:two:3478")
	t.Setenv("REDIS_HOST", "redis.internal")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if len(cfg.AllowedOrigins) != 3 {
		t.Errorf("AllowedOrigins = %v, want 3 entries", cfg.AllowedOrigins)
	}
	if !cfg.RequireAuth {
		t.Error("RequireAuth not picked up from env")
	}
	if cfg.RoomTTL != 48*time.Hour {
		t.Errorf("RoomTTL = %v, want 48h", cfg.RoomTTL)
	}
	if len(cfg.StunServers) != 2 {
		t.Errorf("StunServers = %v, want 2 entries", cfg.StunServers)
	}
	if cfg.Redis.Host != "redis.internal" {
		t.Errorf("Redis.Host = %q", cfg.Redis.Host)
	}
}

func TestLoad_BadTTLFallsBack(t *testing.T) {
	for _, bad := range []string{"zero", "0", "-5"} {
		t.Setenv("ROOM_TTL_HOURS", bad)
		if got := Load().RoomTTL; got != 24*time.Hour {
			t.Errorf("ROOM_TTL_HOURS=%q: RoomTTL = %v, want 24h", bad, got)
		}
	}
}
