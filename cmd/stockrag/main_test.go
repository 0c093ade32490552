package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stockrag/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stockrag dev")
	assert.Contains(t, out, "Git Commit: unknown")
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"resolve needs two args", []string{"resolve", "financial"}},
		{"sync needs two args", []string{"sync", "600519"}},
		{"resolve rejects unknown type", []string{"resolve", "weather", "600519"}},
		{"resolve rejects bad param", []string{"resolve", "financial", "600519", "--param", "noequals"}},
		{"purge needs two args", []string{"purge", "financial"}},
		{"purge rejects unknown type", []string{"purge", "weather", "600519"}},
		{"purge rejects bad code", []string{"purge", "financial", "abc"}},
		{"goto needs version", []string{"migrate", "goto"}},
		{"unknown command", []string{"frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestParseParams(t *testing.T) {
	p, err := parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = parseParams([]string{"period=20231231", "report_type=1", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"period": "20231231", "report_type": "1", "empty": ""}, p)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	for _, cfg := range []config.LogConfig{
		{Level: "debug", Format: "json"},
		{Level: "warn", Format: "console", EnableCaller: true},
		{Level: "bogus", Format: "json", OutputPaths: []string{"stderr"}},
	} {
		logger := initLogger(cfg)
		require.NotNil(t, logger)
		logger.Info("hello")
	}
	assert.True(t, initLogger(config.LogConfig{Level: "debug"}).Core().Enabled(-1))
}
