package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/eventcore/src/consensus"
	"github.com/mosaicnetworks/eventcore/src/window"
)

func TestSetDataDir(t *testing.T) {
	config := NewTestConfig(t, logrus.DebugLevel)

	config.SetDataDir("/tmp/eventcore")
	assert.Equal(t, "/tmp/eventcore", config.DataDir)
	assert.Equal(t, filepath.Join("/tmp/eventcore", DefaultBadgerFile), config.DatabaseDir)
	assert.Equal(t, filepath.Join("/tmp/eventcore", DefaultKeyfile), config.Keyfile())

	//an explicit database directory is kept
	config.DatabaseDir = "/var/db"
	config.SetDataDir("/tmp/other")
	assert.Equal(t, "/var/db", config.DatabaseDir)
}

func TestConsensusConfig(t *testing.T) {
	config := NewTestConfig(t, logrus.DebugLevel)

	cc, err := config.ConsensusConfig()
	require.NoError(t, err)
	assert.Equal(t, consensus.DefaultConfig(), cc)

	config.AncientMode = "generation"
	config.MinTransIncrement = 50
	cc, err = config.ConsensusConfig()
	require.NoError(t, err)
	assert.Equal(t, window.GenerationThreshold, cc.Mode)
	assert.Equal(t, 50*time.Nanosecond, cc.MinTransIncrement)

	config.AncientMode = "wall-clock"
	_, err = config.ConsensusConfig()
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.DebugLevel,
	}
	for in, expected := range cases {
		if got := LogLevel(in); got != expected {
			t.Fatalf("LogLevel(%s) should be %v, not %v", in, expected, got)
		}
	}
}

func TestLoggerPrefix(t *testing.T) {
	config := NewDefaultConfig()
	config.LogLevel = "warn"

	entry := config.Logger()
	assert.Equal(t, "eventcore", entry.Data["prefix"])
	assert.Equal(t, logrus.WarnLevel, config.BaseLogger().Level)
}
