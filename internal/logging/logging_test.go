package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug", "").GetLevel())
	assert.Equal(t, logrus.WarnLevel, New("WARN", "").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("chatty", "").GetLevel())
}

func TestNewTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.log")

	log := New("info", path)
	log.WithField("frame", 7).Info("frame processed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "frame processed")
	assert.Contains(t, string(data), "frame=7")
}
