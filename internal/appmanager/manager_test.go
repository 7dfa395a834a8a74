package appmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServiceSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - name: gateway
    start_order: 3
    config:
      port: ":6150"
  - name: logger
    start_order: 1
  - name: dataset
    start_order: 2
    config:
      batch_size: 500
`), 0644))

	configs, err := LoadServiceSequence(path)
	require.NoError(t, err)
	require.Len(t, configs, 3)
	require.Equal(t, "logger", configs[0].Name)
	require.Equal(t, "dataset", configs[1].Name)
	require.Equal(t, "gateway", configs[2].Name)

	cfg := ConfigFor(configs, "dataset")
	require.Equal(t, 500, cfg["batch_size"])
	require.Nil(t, ConfigFor(configs, "missing"))
}

func TestLoadServiceSequenceMissingFile(t *testing.T) {
	_, err := LoadServiceSequence(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
