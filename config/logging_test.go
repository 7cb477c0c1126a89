package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogConfig_Handler(t *testing.T) {
	tests := []struct {
		name       string
		cfg        LogConfig
		debugShown bool
		json       bool
	}{
		{name: "text_info", cfg: LogConfig{Level: "info", Format: "text"}},
		{name: "text_debug", cfg: LogConfig{Level: "debug", Format: "text"}, debugShown: true},
		{name: "json_warn", cfg: LogConfig{Level: "warn", Format: "json"}, json: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := tt.cfg.Handler(&buf)

			if got := handler.Enabled(context.Background(), slog.LevelDebug); got != tt.debugShown {
				t.Errorf("Debug enabled = %v, want %v", got, tt.debugShown)
			}

			slog.New(handler).Error("Failed to store credentials", "key", "sarao_rt_auth")
			line := strings.TrimSpace(buf.String())
			if tt.json {
				var entry map[string]any
				if err := json.Unmarshal([]byte(line), &entry); err != nil {
					t.Fatalf("Expected JSON output, got %q", line)
				}
				if entry["key"] != "sarao_rt_auth" {
					t.Errorf("Expected key attribute, got %v", entry)
				}
			} else if !strings.Contains(line, "key=sarao_rt_auth") {
				t.Errorf("Expected text attribute, got %q", line)
			}
		})
	}
}
