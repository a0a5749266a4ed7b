package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "popswap.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1, Quiet: true}))
	require.Equal(t, path, GetCurrentLogFile())

	WithField("component", "test").Info("hello file")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), "hello file"))
	require.True(t, strings.Contains(string(b), "component=test"))
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "nope", Quiet: true}))
	require.Equal(t, "info", Logger.GetLevel().String())
}
