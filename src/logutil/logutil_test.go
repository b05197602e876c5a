package logutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := newRotatingWriter(path, 10)
	require.NoError(t, err)
	defer w.Close()

	for _, line := range []string{"aaaaaa\n", "bbbbbb\n", "cccccc\n", "dddddd\n", "eeeeee\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "eeeeee\n", string(cur))

	first, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "dddddd\n", string(first))

	_, err = os.Stat(path + ".3")
	require.NoError(t, err)
	_, err = os.Stat(path + ".4")
	assert.True(t, os.IsNotExist(err), "only three archives are kept")
}

func TestConfigureLevelAndFile(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.New()
	Configure(logger, true, dir, "info")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger.WithField("run_id", "r1").Info("hello")
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "run_id=r1"), string(data))
}

func TestConfigureUnknownLevel(t *testing.T) {
	logger := logrus.New()
	Configure(logger, false, "", "chatty")
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.Equal(t, os.Stderr, logger.Out)
}
