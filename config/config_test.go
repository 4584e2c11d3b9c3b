package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT: 8080\nPUSH_HEARTBEAT: 15s\nSOCKET_DEBUG: true\n"), 0o600))

	vars, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", vars["SERVER_PORT"])
	assert.Equal(t, "15s", vars["PUSH_HEARTBEAT"])
	assert.Equal(t, "true", vars["SOCKET_DEBUG"])
}

func TestLoadFileRejectsNested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("TEST_CONNECT_INT", "42")
	t.Setenv("TEST_CONNECT_BAD_INT", "forty")
	t.Setenv("TEST_CONNECT_DURATION", "90s")
	t.Setenv("TEST_CONNECT_BOOL", "true")
	t.Setenv("TEST_CONNECT_FLOAT", "2.5")

	assert.Equal(t, 42, Int("TEST_CONNECT_INT", 1))
	assert.Equal(t, 1, Int("TEST_CONNECT_BAD_INT", 1))
	assert.Equal(t, 7, Int("TEST_CONNECT_UNSET", 7))
	assert.Equal(t, 90*time.Second, Duration("TEST_CONNECT_DURATION", time.Second))
	assert.True(t, Bool("TEST_CONNECT_BOOL", false))
	assert.Equal(t, 2.5, Float("TEST_CONNECT_FLOAT", 1))
}
