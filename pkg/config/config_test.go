package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.Port != 8080 || c.RateLimit.Policy != "static" || c.UserStore.Backend != "memory" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.RateLimit.Static.Capacity != 5 || c.RateLimit.Static.RefillPeriod != time.Minute {
		t.Fatalf("unexpected static defaults: %+v", c.RateLimit.Static)
	}
	if c.RateLimit.Cache.FlushInterval != 10*time.Minute || c.RateLimit.Cache.InitialDelay != 10*time.Second {
		t.Fatalf("unexpected cache defaults: %+v", c.RateLimit.Cache)
	}
	if len(c.RateLimit.SkipPaths) != 3 || c.RateLimit.SkipPaths[2] != "/admin" {
		t.Fatalf("unexpected skip paths %v", c.RateLimit.SkipPaths)
	}
	if c.Admin.Enabled || c.Logging.Level != "info" {
		t.Fatalf("unexpected admin/logging defaults: %+v %+v", c.Admin, c.Logging)
	}
}

func TestParseExplicitFalseWins(t *testing.T) {
	c, err := Parse([]byte("server:\n  cors: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.CORS {
		t.Fatalf("explicit false must override defaults")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown policy":     "ratelimit:\n  policy: fancy\n",
		"zero capacity":      "ratelimit:\n  static:\n    capacity: -1\n",
		"http without url":   "user_store:\n  backend: http\n",
		"kafka w/o brokers":  "kafka:\n  enabled: true\n  brokers: []\n",
		"bad seed":           "user_store:\n  seed:\n    \"42\": 0\n",
		"bad key strategy":   "ratelimit:\n  key:\n    strategy: cookie\n",
		"bad log level":      "logging:\n  level: loud\n",
		"open admin in prod": "environment: prod\nadmin:\n  enabled: true\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestAdminTokenRequiredOutsideDev(t *testing.T) {
	if _, err := Parse([]byte("environment: staging\nadmin:\n  enabled: true\n")); err == nil {
		t.Fatalf("expected error for admin without token")
	}
	c, err := Parse([]byte("environment: staging\nadmin:\n  enabled: true\n  token: s3cret\n"))
	if err != nil || !c.Admin.Enabled {
		t.Fatalf("admin with token: %v", err)
	}
	if _, err := Parse([]byte("environment: dev\nadmin:\n  enabled: true\n")); err != nil {
		t.Fatalf("dev may run admin without token: %v", err)
	}
	c, err = Parse([]byte("environment: prod\n"))
	if err != nil || c.Admin.Enabled {
		t.Fatalf("admin must be off by default: %v %+v", err, c)
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := map[string]string{
		"RATEGATE_POLICY":    "user",
		"USER_STORE_BACKEND": "redis",
		"REDIS_ADDR":         "cache:6380",
		"KAFKA_BROKERS":      "k1:9092,k2:9092",
		"ADMIN_TOKEN":        "s3cret",
		"PORT":               "9090",
	}
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.RateLimit.Policy != "user" || c.UserStore.Backend != "redis" || c.Admin.Token != "s3cret" || c.Server.Port != 9090 {
		t.Fatalf("env not applied: %+v", c)
	}
	if !c.Kafka.Enabled || strings.Join(c.Kafka.Brokers, ",") != "k1:9092,k2:9092" {
		t.Fatalf("kafka env not applied: %+v", c.Kafka)
	}
	if host, port := c.RedisHostPort(); host != "cache" || port != 6380 {
		t.Fatalf("redis host/port %s:%d", host, port)
	}
}

func TestLoadSampleConfig(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("sample config not found: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if c.UserStore.Seed["42"] != 3 {
		t.Fatalf("expected seed for user 42, got %v", c.UserStore.Seed)
	}
}
