package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantErr        bool
		expectedOutput string
	}{
		{
			name:           "root command without args shows help",
			args:           []string{},
			expectedOutput: "CallMetrics API",
		},
		{
			name:           "root command with --help",
			args:           []string{"--help"},
			expectedOutput: "Available Commands:",
		},
		{
			name:    "root command with invalid flag",
			args:    []string{"--invalid-flag"},
			wantErr: true,
		},
		{
			name:           "serve help",
			args:           []string{"serve", "--help"},
			expectedOutput: "Start the CallMetrics API server",
		},
		{
			name:    "serve with invalid port",
			args:    []string{"serve", "--port", "invalid"},
			wantErr: true,
		},
		{
			name:    "process requires a video id",
			args:    []string{"process"},
			wantErr: true,
		},
		{
			name:           "export analyses help",
			args:           []string{"export", "analyses", "--help"},
			expectedOutput: "--since",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.expectedOutput != "" && !strings.Contains(buf.String(), tt.expectedOutput) {
				t.Errorf("Expected output to contain %q, got %q", tt.expectedOutput, buf.String())
			}
		})
	}
}

func TestLogFlags(t *testing.T) {
	cmd := NewRootCmd()

	logFlag := cmd.PersistentFlags().Lookup("log-level")
	if logFlag == nil {
		t.Fatal("Expected log-level flag to be registered")
	}
	if logFlag.DefValue != "" {
		t.Errorf("Expected log-level to default to config, got %q", logFlag.DefValue)
	}

	if cmd.PersistentFlags().Lookup("json-logs") == nil {
		t.Error("Expected json-logs flag to be registered")
	}
}

func TestNewLogger(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "test"}
		c.Flags().String("log-level", "", "")
		c.Flags().Bool("json-logs", false, "")
		c.SetErr(new(bytes.Buffer))
		_ = c.Flags().Parse(args)
		return c
	}

	cfg := testConfig(t)
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "text"

	fromConfig := newLogger(newCmd(), cfg)
	assert.Equal(t, logrus.WarnLevel, fromConfig.Logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, fromConfig.Logger.Formatter)

	overridden := newLogger(newCmd("--log-level", "debug", "--json-logs"), cfg)
	assert.Equal(t, logrus.DebugLevel, overridden.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, overridden.Logger.Formatter)
}
