package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/learnsync/internal/config"
	"github.com/at-ishikawa/learnsync/internal/testutil"
)

// runCommand executes the root command with args and returns its output.
func runCommand(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LEARNSYNC_USER_ID", "")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// lastField returns the last word of the first output line containing prefix.
func lastField(t *testing.T, output, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, prefix) {
			fields := strings.Fields(strings.TrimPrefix(line, prefix))
			require.NotEmpty(t, fields)
			return strings.TrimSuffix(fields[0], ",")
		}
	}
	t.Fatalf("no line starting with %q in %q", prefix, output)
	return ""
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		debugMode bool
		wantLevel slog.Level
	}{
		{
			name:      "debug mode enabled",
			debugMode: true,
			wantLevel: slog.LevelDebug,
		},
		{
			name:      "debug mode disabled",
			debugMode: false,
			wantLevel: slog.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			setupLogger(&buf, tt.debugMode)
			logger := slog.Default()
			assert.NotNil(t, logger)
			assert.Equal(t, tt.wantLevel <= slog.LevelDebug, logger.Enabled(context.Background(), slog.LevelDebug))

			logger.Info("hello")
			assert.Contains(t, buf.String(), "msg=hello")
		})
	}
}

func TestNewLogFile(t *testing.T) {
	assert.Nil(t, newLogFile(config.LogConfig{}))

	logFile := newLogFile(config.LogConfig{File: "/tmp/learnsync.log", MaxSizeMB: 10, MaxFiles: 3, MaxAgeDays: 28})
	require.NotNil(t, logFile)
	assert.Equal(t, "/tmp/learnsync.log", logFile.Filename)
	assert.Equal(t, 10, logFile.MaxSize)
	assert.Equal(t, 3, logFile.MaxBackups)
	assert.Equal(t, 28, logFile.MaxAge)
}

func TestNewRootCommand(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "learnsync", cmd.Use)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"session", "card", "prefs", "sync", "login", "logout", "migrate", "db", "export", "daemon"} {
		assert.Contains(t, names, want)
	}
}

func TestSubcommands(t *testing.T) {
	want := map[string][]string{
		"session": {"create", "list", "show", "delete", "activate", "message", "status", "progress"},
		"card":    {"add", "list", "due", "review", "delete", "stats"},
		"prefs":   {"set", "api", "show"},
		"sync":    {"status", "now", "quick", "full", "plan", "watch"},
		"db":      {"migrate"},
	}
	root := newRootCommand()
	for parent, children := range want {
		t.Run(parent, func(t *testing.T) {
			cmd, _, err := root.Find([]string{parent})
			require.NoError(t, err)
			require.True(t, cmd.HasSubCommands())
			for _, child := range children {
				sub, _, err := cmd.Find([]string{child})
				require.NoError(t, err)
				assert.Equal(t, child, sub.Name())
				assert.NotNil(t, sub.RunE)
			}
		})
	}
}

func TestAnonymousWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)

	out, err := runCommand(t, cfgPath, "session", "create", "--title", "Intro to Go")
	require.NoError(t, err)
	sessionID := lastField(t, out, "created session ")

	out, err = runCommand(t, cfgPath, "session", "activate", sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "active session is "+sessionID)

	out, err = runCommand(t, cfgPath, "session", "message", sessionID, "What is a slice?")
	require.NoError(t, err)
	messageID := lastField(t, out, "appended message ")

	out, err = runCommand(t, cfgPath, "card", "add", sessionID, "--title", "Slices", "--content", "Views over arrays", "--tag", "Go", "--tag", "go")
	require.NoError(t, err)
	cardID := lastField(t, out, "created card ")

	_, err = runCommand(t, cfgPath, "card", "add", sessionID, "--message", messageID)
	require.NoError(t, err)

	out, err = runCommand(t, cfgPath, "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, sessionID)
	assert.Contains(t, out, "Intro to Go")

	out, err = runCommand(t, cfgPath, "session", "show", sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "title: Intro to Go")
	assert.Contains(t, out, "content: What is a slice?")

	out, err = runCommand(t, cfgPath, "card", "list", "--session", sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, cardID)
	assert.Contains(t, out, "What is a slice?")

	out, err = runCommand(t, cfgPath, "card", "review", cardID, "5")
	require.NoError(t, err)
	assert.Contains(t, out, "next review of "+cardID)

	out, err = runCommand(t, cfgPath, "card", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "cards 2, reviews 1")

	out, err = runCommand(t, cfgPath, "sync", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "anonymous")

	out, err = runCommand(t, cfgPath, "sync", "plan", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "active session")

	_, err = runCommand(t, cfgPath, "sync", "now")
	assert.ErrorContains(t, err, "not signed in")

	exportDir := filepath.Join(tmpDir, "export")
	out, err = runCommand(t, cfgPath, "export", "--output", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 sessions and 2 cards")
	assert.FileExists(t, filepath.Join(exportDir, "sessions.yml"))
	assert.FileExists(t, filepath.Join(exportDir, "cards.yml"))

	_, err = runCommand(t, cfgPath, "card", "delete", cardID)
	require.NoError(t, err)
	_, err = runCommand(t, cfgPath, "session", "delete", sessionID)
	require.NoError(t, err)

	out, err = runCommand(t, cfgPath, "card", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, cardID)
}

func TestPrefsCommands(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, t.TempDir())
	t.Setenv(apiKeyEnv, "sk-secret")

	_, err := runCommand(t, cfgPath, "prefs", "set", "--theme", "dark", "--sync-optional")
	require.NoError(t, err)
	_, err = runCommand(t, cfgPath, "prefs", "set", "--language", "ja")
	require.NoError(t, err)
	_, err = runCommand(t, cfgPath, "prefs", "api", "--provider", "openai", "--model", "gpt-4o")
	require.NoError(t, err)

	out, err := runCommand(t, cfgPath, "prefs", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "theme: dark")
	assert.Contains(t, out, "language: ja")
	assert.Contains(t, out, "sync_include_optional: true")
	assert.Contains(t, out, "provider: openai")
	assert.Contains(t, out, "****")
	assert.NotContains(t, out, "sk-secret")

	_, err = runCommand(t, cfgPath, "prefs", "set", "--level", "wizard")
	assert.Error(t, err)
}

func TestLoginWithoutRemoteStore(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, t.TempDir())

	_, err := runCommand(t, cfgPath, "session", "create", "--title", "Intro to Go")
	require.NoError(t, err)

	out, err := runCommand(t, cfgPath, "login", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as user-1")
	assert.Contains(t, out, "migrated 0 items, 1 failed")

	out, err = runCommand(t, cfgPath, "sync", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "as user-1")
	assert.Contains(t, out, "not been fully migrated")

	_, err = runCommand(t, cfgPath, "logout")
	require.NoError(t, err)
	out, err = runCommand(t, cfgPath, "sync", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "anonymous")
}

func TestDBMigrateRequiresRemote(t *testing.T) {
	cfgPath := testutil.SetupTestConfig(t, t.TempDir())
	_, err := runCommand(t, cfgPath, "db", "migrate")
	assert.ErrorContains(t, err, "remote.host and remote.database must be configured")
}

func TestBrokenConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml content"), 0644))

	_, err := runCommand(t, cfgPath, "session", "list")
	assert.ErrorContains(t, err, "configuration file found but could not be read")
}
