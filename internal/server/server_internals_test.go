package server

import (
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range tests {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLogLevel(%q) error = %v; wantErr %v", tc.in, err, tc.wantErr)
		}

		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestWithRateLimit_BurstAtLeastOne(t *testing.T) {
	var o options
	WithRateLimit(5, 0)(&o)

	if o.limiter == nil {
		t.Fatal("want limiter")
	}

	if got := o.limiter.Burst(); got != 1 {
		t.Errorf("Burst() = %d; want 1", got)
	}

	WithRateLimit(-1, 4)(&o)
	if o.limiter != nil {
		t.Error("want limiter cleared for non-positive rate")
	}
}

func TestNew_ShutdownTimeoutFromConfig(t *testing.T) {
	s := newServerForTest(7)
	if s.shutdownTimeout.Seconds() != 7 {
		t.Errorf("shutdownTimeout = %v; want 7s", s.shutdownTimeout)
	}

	s = newServerForTest(0)
	if s.shutdownTimeout.Seconds() != 30 {
		t.Errorf("shutdownTimeout = %v; want 30s default", s.shutdownTimeout)
	}
}
