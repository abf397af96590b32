package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/itohio/goctd/pkg/config"
)

func TestOpenLog_PersistsCounter(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	cfg := config.Default()
	cfg.Log.Dir = dir
	cfg.Log.NextFile = 5
	require.NoError(t, cfg.Save(configPath))

	log, err := openLog(cfg, configPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "LOG00005.TXT"), log.Name())

	_, err = log.Write([]byte("  5.0000,  3.00000,  10.000\n"))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	saved, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 6, saved.Log.NextFile)

	// The next start skips the used log.
	log, err = openLog(saved, configPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "LOG00006.TXT"), log.Name())
	require.NoError(t, log.Close())
}

func TestOpenLog_ReusesEmptyLog(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LOG00000.TXT"), nil, 0644))

	cfg := config.Default()
	cfg.Log.Dir = dir

	log, err := openLog(cfg, configPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "LOG00000.TXT"), log.Name())
	require.NoError(t, log.Close())

	_, err = os.Stat(configPath)
	assert.True(t, os.IsNotExist(err), "counter unchanged, nothing to persist")
}

func TestOpenLog_MissingDir(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Dir = filepath.Join(t.TempDir(), "missing")

	_, err := openLog(cfg, filepath.Join(t.TempDir(), "config.yaml"), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestOpenLog_KeepsOverridesOutOfConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("serial:\n  port: /dev/ttyS1\nlog:\n  dir: "+dir+"\n"), 0644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	cfg.Serial.Port = "/dev/ttyUSB9"
	cfg.Serial.Baud = 115200
	cfg.Metrics.Listen = ":9108"

	log, err := openLog(cfg, configPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, log.Close())
	assert.Equal(t, 1, cfg.Log.NextFile)

	saved, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Log.NextFile)
	assert.Equal(t, "/dev/ttyS1", saved.Serial.Port)
	assert.Equal(t, config.BaudDefault, saved.Serial.Baud)
	assert.Empty(t, saved.Metrics.Listen)
}

func TestRunMain_ExitCodes(t *testing.T) {
	badConfig := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(badConfig, []byte("invalid: yaml: content: ["), 0644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"-h"}, 0},
		{"unknown flag", []string{"-nope"}, 2},
		{"invalid config", []string{"-config", badConfig}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runMain(tt.args))
		})
	}
}
