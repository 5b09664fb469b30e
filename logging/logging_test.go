package logging

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"cineai/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cineai.log")
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	closer, err := Setup(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	log.Printf("import finished")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Logging to file")
	assert.Contains(t, string(data), "import finished")
	assert.Contains(t, string(data), "logging_test.go")
}

func TestSetup_StdoutOnly(t *testing.T) {
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	closer, err := Setup(config.LogConfig{})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}
