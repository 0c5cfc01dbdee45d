package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvStr(t *testing.T) {
	t.Setenv("MACROSYNC_TEST_STR", "value")

	if got := GetEnvStr("MACROSYNC_TEST_STR", "default"); got != "value" {
		t.Errorf("GetEnvStr() = %q, want %q", got, "value")
	}

	if got := GetEnvStr("MACROSYNC_TEST_STR_UNSET", "default"); got != "default" {
		t.Errorf("GetEnvStr() = %q, want default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("MACROSYNC_TEST_INT", "7")

	if got := GetEnvInt("MACROSYNC_TEST_INT", 3); got != 7 {
		t.Errorf("GetEnvInt() = %d, want 7", got)
	}

	t.Setenv("MACROSYNC_TEST_INT", "not-a-number")

	if got := GetEnvInt("MACROSYNC_TEST_INT", 3); got != 3 {
		t.Errorf("GetEnvInt() = %d, want the default 3 for malformed input", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"maybe", true}, // malformed falls back to the default
	}

	for _, tt := range tests {
		t.Setenv("MACROSYNC_TEST_BOOL", tt.value)

		if got := GetEnvBool("MACROSYNC_TEST_BOOL", true); got != tt.want {
			t.Errorf("GetEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("MACROSYNC_TEST_DUR", "90s")

	if got := GetEnvDuration("MACROSYNC_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("GetEnvDuration() = %v, want 90s", got)
	}

	t.Setenv("MACROSYNC_TEST_DUR", "ninety")

	if got := GetEnvDuration("MACROSYNC_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration() = %v, want the default for malformed input", got)
	}
}

func TestGetEnvLogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo}, // unknown falls back to the default
	}

	for _, tt := range tests {
		t.Setenv("MACROSYNC_TEST_LEVEL", tt.value)

		if got := GetEnvLogLevel("MACROSYNC_TEST_LEVEL", slog.LevelInfo); got != tt.want {
			t.Errorf("GetEnvLogLevel(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	got := ParseCommaSeparatedList(" yahoo, fred ,,occ ")

	want := []string{"yahoo", "fred", "occ"}
	if len(got) != len(want) {
		t.Fatalf("ParseCommaSeparatedList() = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := ParseCommaSeparatedList(""); len(got) != 0 {
		t.Errorf("ParseCommaSeparatedList(\"\") = %v, want empty", got)
	}
}
