package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewcsillag/notecove/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestCLIContextFrom_NoneSet(t *testing.T) {
	assert.Nil(t, cliContextFrom(context.Background()))
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}

func TestCLIContextFrom_RoundTrip(t *testing.T) {
	cc := &CLIContext{Logger: testLogger(), Flags: CLIFlags{Verbose: true}}
	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	got := cliContextFrom(ctx)
	require.NotNil(t, got)
	assert.Same(t, cc, got)
	assert.Same(t, cc, mustCLIContext(ctx))
}

func TestResolveSDPath_PositionalArgWins(t *testing.T) {
	cc := &CLIContext{Cfg: &config.Resolved{SD: &config.SDConfig{Path: "/configured/path"}}}

	path, err := resolveSDPath(cc, []string{"/explicit/path"})
	require.NoError(t, err)
	assert.Equal(t, "/explicit/path", path)
}

func TestResolveSDPath_FallsBackToConfiguredSD(t *testing.T) {
	cc := &CLIContext{Cfg: &config.Resolved{SD: &config.SDConfig{Path: "/configured/path"}}}

	path, err := resolveSDPath(cc, nil)
	require.NoError(t, err)
	assert.Equal(t, "/configured/path", path)
}

func TestResolveSDPath_ErrorsWithNoPathAndNoConfiguredSD(t *testing.T) {
	cc := &CLIContext{Cfg: &config.Resolved{SD: nil}}

	_, err := resolveSDPath(cc, nil)
	assert.Error(t, err)
}

func TestBuildLogger_LevelPrecedence(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{LogLevel: "error"}}

	assert.True(t, buildLogger(cfg, CLIFlags{}).Enabled(context.Background(), slog.LevelError))
	assert.False(t, buildLogger(cfg, CLIFlags{}).Enabled(context.Background(), slog.LevelWarn))

	assert.True(t, buildLogger(cfg, CLIFlags{Verbose: true}).Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, buildLogger(cfg, CLIFlags{Debug: true}).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, buildLogger(cfg, CLIFlags{Quiet: true}).Enabled(context.Background(), slog.LevelWarn))
}

func TestBuildLogger_NilConfigDefaultsToWarn(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewRootCmd_VersionSkipsConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"version"})

	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestNewRootCmd_RegistersAllSubcommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{"version", "open", "watch", "status", "gc", "quarantine", "fuzz"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "expected subcommand %q to be registered", name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestNewRootCmd_MutuallyExclusiveVerbosityFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--verbose", "--quiet", "version"})
	cmd.SetOut(new(bytes.Buffer))

	assert.Error(t, cmd.Execute())
}
