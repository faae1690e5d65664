package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerToWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Level: "warn", Service: "ramadan-companion"}, &buf)

	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("warn 级别不应输出 info 日志: %s", buf.String())
	}

	logger.Warn().Str("prayer", "Fajr").Msg("kept")
	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("日志应为 JSON: %v", err)
	}
	if event["service"] != "ramadan-companion" || event["prayer"] != "Fajr" {
		t.Fatalf("字段缺失: %v", event)
	}
}

func TestNewLoggerToConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Format: "console", Level: "bogus"}, &buf)
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("console 输出格式不正确: %q", buf.String())
	}
}
