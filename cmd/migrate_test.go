package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestMigrateCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedOutput string
	}{
		{
			name:           "migrate command with help",
			args:           []string{"migrate", "--help"},
			expectedOutput: "Manage database migrations",
		},
		{
			name:           "migrate up subcommand",
			args:           []string{"migrate", "up", "--help"},
			expectedOutput: "Apply pending migrations",
		},
		{
			name:           "migrate down subcommand",
			args:           []string{"migrate", "down", "--help"},
			expectedOutput: "--yes",
		},
		{
			name:           "migrate status subcommand",
			args:           []string{"migrate", "status", "--help"},
			expectedOutput: "Show migration status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			if err := cmd.Execute(); err != nil {
				t.Errorf("Execute() error = %v", err)
			}

			if !strings.Contains(buf.String(), tt.expectedOutput) {
				t.Errorf("Expected output to contain %q, got %q", tt.expectedOutput, buf.String())
			}
		})
	}
}

func TestFormatMigrationStatus(t *testing.T) {
	tests := []struct {
		name   string
		status database.MigrationStatus
		want   string
	}{
		{name: "up to date", status: database.MigrationStatus{Version: 3, Latest: 3}, want: "up to date"},
		{name: "pending", status: database.MigrationStatus{Version: 1, Latest: 3}, want: "2 pending"},
		{name: "dirty", status: database.MigrationStatus{Version: 2, Latest: 3, Dirty: true}, want: "dirty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := formatMigrationStatus("postgres", &tt.status)
			assert.Contains(t, out, "Driver:  postgres")
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestMigrationDatabase_SupabaseUsesPostgres(t *testing.T) {
	db, err := migrationDatabase(testConfig(t).Database)
	if assert.NoError(t, err) {
		assert.Equal(t, database.DriverSQLite, db.Driver)
		_ = db.Close()
	}

	cfg := testConfig(t).Database
	cfg.Driver = database.DriverSupabase
	_, err = migrationDatabase(cfg)
	assert.EqualError(t, err, "database dsn is not configured")
}
