package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestLogMetricEmitsEntry(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithComponent("status").LogMetric("status", "RealizedPnl", 12.5, "gauge", nil)

	out := buf.String()
	for _, want := range []string{`"metric":"RealizedPnl"`, `"value":12.5`, `"metric_type":"gauge"`, `"component":"status"`} {
		if !strings.Contains(out, want) {
			t.Errorf("metric entry missing %s: %s", want, out)
		}
	}
}

func TestLogDataFlowEntry(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	LogDataFlowEntry(log.WithComponent("file_sink"), "dispatcher", "/tmp/fills.log", 3, "user_fills")

	out := buf.String()
	for _, want := range []string{`"source":"dispatcher"`, `"destination":"/tmp/fills.log"`, `"record_count":3`, `"flow_type":"data_flow"`} {
		if !strings.Contains(out, want) {
			t.Errorf("data flow entry missing %s: %s", want, out)
		}
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}
