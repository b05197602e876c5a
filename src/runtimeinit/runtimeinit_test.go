package runtimeinit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-book-reader/src/selectors"
)

func TestLoadSelectorsWithoutFile(t *testing.T) {
	log, hook := test.NewNullLogger()
	reg := LoadSelectors("", log)
	assert.Equal(t, selectors.New().Resolve(selectors.RoleSend), reg.Resolve(selectors.RoleSend))
	assert.Empty(t, hook.AllEntries())
}

func TestLoadSelectorsAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("send:\n  - \"#custom-send\"\n"), 0o600))

	log, _ := test.NewNullLogger()
	reg := LoadSelectors(path, log)
	assert.Equal(t, []string{"#custom-send"}, reg.Resolve(selectors.RoleSend))
}

func TestLoadSelectorsBrokenFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("send: [unclosed"), 0o600))

	log, hook := test.NewNullLogger()
	reg := LoadSelectors(path, log)
	assert.Equal(t, selectors.New().Resolve(selectors.RoleSend), reg.Resolve(selectors.RoleSend))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
