package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("默认配置应有效: %v", err)
	}
	if cfg.Scheduler.JobName != "PrayerNotificationWork" || cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("调度默认值不正确: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.ExistingPolicy != "keep" {
		t.Fatalf("默认应为 keep 策略, 实际 %s", cfg.Scheduler.ExistingPolicy)
	}
	if !cfg.Location.ZeroLatitudeUnset {
		t.Fatal("默认应将零纬度视为未设置")
	}
	if cfg.Ramadan.Days != 30 || cfg.Ramadan.SehriOffset != 30*time.Minute || cfg.Ramadan.CardSehriOffset != 10*time.Minute {
		t.Fatalf("斋月默认值不正确: %+v", cfg.Ramadan)
	}
	if cfg.KV.Backend != "badger" || cfg.KV.Redis.Timeout != 3*time.Second {
		t.Fatalf("KV 默认值不正确: %+v", cfg.KV)
	}
	if cfg.App.Name != "test" {
		t.Fatalf("文件中的值应覆盖默认值: %s", cfg.App.Name)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
prayer:
  timezone: UTC
kv:
  backend: redis
  redis:
    addr: redis:6379
ramadan:
  start_date: "2026-02-18"
alerting:
  once_per_day: true
`)
	t.Setenv("RAMADAN_SCHEDULER_INTERVAL", "5m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("配置应有效: %v", err)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("环境变量应覆盖 interval, 实际 %s", cfg.Scheduler.Interval)
	}
	if cfg.KV.Backend != "redis" || cfg.KV.Redis.Addr != "redis:6379" {
		t.Fatalf("KV 配置不正确: %+v", cfg.KV)
	}
	if !cfg.Alerting.OncePerDay {
		t.Fatal("once_per_day 应为 true")
	}
	loc, err := cfg.TimeLocation()
	if err != nil || loc != time.UTC {
		t.Fatalf("时区应为 UTC: %v %v", loc, err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"telegram without token": "alerting:\n  telegram:\n    enabled: true\n",
		"unknown kv backend":     "kv:\n  backend: etcd\n",
		"bad timezone":           "prayer:\n  timezone: Mars/Olympus\n",
		"bad start date":         "ramadan:\n  start_date: 18/02/2026\n",
		"bad policy":             "scheduler:\n  existing_policy: append\n",
		"db without dsn":         "database:\n  enabled: true\n",
		"bad provider":           "location:\n  provider: gps\n",
		"bad mqtt qos":           "alerting:\n  mqtt:\n    enabled: true\n    qos: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("%s 应校验失败", name)
			}
		})
	}
}
