package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLogLevel_AllLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", "DEBUG", slog.LevelDebug, false},
		{"trace_alias", "trace", slog.LevelDebug, false},
		{"info", "INFO", slog.LevelInfo, false},
		{"config_alias", "config", slog.LevelInfo, false},
		{"warn", "WARN", slog.LevelWarn, false},
		{"notice_alias", "notice", slog.LevelWarn, false},
		{"error", "ERROR", slog.LevelError, false},
		{"fatal_alias", "fatal", slog.LevelError, false},
		{"invalid", "NONSENSE", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		endpoint     string
		wantAddr     string
		wantInsecure bool
		wantErr      bool
	}{
		{"http", "http://localhost:4318", "localhost:4318", true, false},
		{"https", "https://collector.example.com:4318", "collector.example.com:4318", false, false},
		{"invalid_scheme", "ftp://localhost:4318", "", false, true},
		{"no_scheme", "localhost:4318", "", false, true},
		{"no_host", "http://", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			addr, insecure, err := splitEndpoint(tt.endpoint)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantAddr, addr)
			require.Equal(t, tt.wantInsecure, insecure)
		})
	}
}

func TestNew_StdoutExportersByDefault(t *testing.T) {
	t.Parallel()

	svc, err := New(context.Background(), Settings{ServiceName: "ssp-backend-test", LogLevel: "DEBUG"})
	require.NoError(t, err)
	require.NotNil(t, svc.Slogger)
	require.NotNil(t, svc.MetricsProvider)
	require.NotNil(t, svc.TracesProvider)

	svc.Slogger.Info("telemetry smoke test", "uptime", svc.StartTime)

	require.NoError(t, svc.Shutdown())
}

func TestNew_RejectsInvalidLogLevel(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Settings{ServiceName: "ssp-backend-test", LogLevel: "NOT_A_LEVEL"})
	require.Error(t, err)
}

func TestNew_RejectsInvalidOTLPEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Settings{
		ServiceName:  "ssp-backend-test",
		LogLevel:     "INFO",
		OTLPEndpoint: "ftp://localhost:4318",
	})
	require.Error(t, err)
}
