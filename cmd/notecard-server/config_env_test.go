package main

import (
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := validConfig()
	t.Setenv("NOTECARD_SERVER_BAUD", "9600")
	t.Setenv("NOTECARD_SERVER_MDNS_ENABLE", "true")
	t.Setenv("NOTECARD_SERVER_SERIAL_READ_TIMEOUT", "100ms")
	t.Setenv("NOTECARD_SERVER_LOG_METRICS_INTERVAL", "5s")
	t.Setenv("NOTECARD_SERVER_SEGMENT_DELAY", "10ms")
	t.Setenv("NOTECARD_SERVER_STRICT_FRAMING", "on")
	t.Setenv("NOTECARD_SERVER_METRICS", ":9100")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.baud != 9600 {
		t.Fatalf("expected baud override, got %d", base.baud)
	}
	if !base.mdnsEnable || !base.strictFraming {
		t.Fatalf("expected boolean overrides")
	}
	if base.serialReadTO != 100*time.Millisecond {
		t.Fatalf("expected serialReadTO 100ms got %v", base.serialReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
	if base.segmentDelay != 10*time.Millisecond {
		t.Fatalf("expected segmentDelay 10ms got %v", base.segmentDelay)
	}
	if base.metricsAddr != ":9100" {
		t.Fatalf("expected metrics addr override, got %q", base.metricsAddr)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{baud: 115200}
	t.Setenv("NOTECARD_SERVER_BAUD", "9600")
	// Simulate user passed -baud flag (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 115200 {
		t.Fatalf("expected baud unchanged 115200 got %d", base.baud)
	}
}

func TestApplyEnvOverrides_BadValues(t *testing.T) {
	for key, val := range map[string]string{
		"NOTECARD_SERVER_HUB_BUFFER":        "notint",
		"NOTECARD_SERVER_QUEUE_SIZE":        "0",
		"NOTECARD_SERVER_RESPONSE_TIMEOUT":  "soon",
		"NOTECARD_SERVER_CHUNK_DELAY":       "-1s",
		"NOTECARD_SERVER_SERIAL_LOCK":       "maybe",
		"NOTECARD_SERVER_TRANSACTION_RETRY": "x",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if err := applyEnvOverrides(validConfig(), map[string]struct{}{}); err == nil {
				t.Fatalf("expected error for %s=%q", key, val)
			}
		})
	}
}

func TestApplyEnvOverrides_EmptyIgnored(t *testing.T) {
	base := validConfig()
	t.Setenv("NOTECARD_SERVER_SERIAL", "  ")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.serialDev != "/dev/null" {
		t.Fatalf("empty env overrode serial: %q", base.serialDev)
	}
}
