package browser

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-book-reader/src/page"
)

func TestLockProfileIsExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chrome-data")

	first, err := lockProfile(dir)
	require.NoError(t, err)
	require.NotNil(t, first)
	defer first.Unlock()

	_, err = lockProfile(dir)
	assert.ErrorIs(t, err, ErrProfileLocked)

	require.NoError(t, first.Unlock())
	again, err := lockProfile(dir)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestLockProfileWithoutDir(t *testing.T) {
	lock, err := lockProfile("")
	require.NoError(t, err)
	assert.Nil(t, lock)
}

func TestFileURL(t *testing.T) {
	u, err := fileURL(filepath.Join(t.TempDir(), "My Book.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file:///"), u)
	assert.True(t, strings.HasSuffix(u, "/My%20Book.pdf"), u)
}

func TestJSStringEscapes(t *testing.T) {
	assert.Equal(t, `"a \"quoted\" \u003c/p\u003e"`, jsString(`a "quoted" </p>`))
	assert.Equal(t, `"line\nbreak"`, jsString("line\nbreak"))
}

func TestElementScriptEmbedsSelector(t *testing.T) {
	script := elementScript(`button[data-testid="send-button"]`, "el.click();")
	assert.Contains(t, script, `document.querySelector("button[data-testid=\"send-button\"]")`)
	assert.Contains(t, script, "el.click();")
	assert.Contains(t, script, "return {error: String(e)}")
}

func TestCustomEventScript(t *testing.T) {
	script, err := customEventScript(page.Event{
		Kind:   page.EventCustom,
		Name:   "ai-explanation-complete",
		Detail: map[string]any{"bookName": "SICP"},
	})
	require.NoError(t, err)
	assert.Equal(t, `window.dispatchEvent(new CustomEvent("ai-explanation-complete", {detail: {"bookName":"SICP"}}))`, script)

	script, err = customEventScript(page.Event{Kind: page.EventCustom, Name: "x"})
	require.NoError(t, err)
	assert.Contains(t, script, "{detail: {}}")
}

func TestPasteKeys(t *testing.T) {
	actions := pasteKeys(input.ModifierCtrl)
	require.Len(t, actions, 2)
	down, ok := actions[0].(*input.DispatchKeyEventParams)
	require.True(t, ok)
	assert.Equal(t, input.KeyRawDown, down.Type)
	assert.Equal(t, []string{"paste"}, down.Commands)
	assert.Equal(t, input.ModifierCtrl, down.Modifiers)

	if runtime.GOOS == "darwin" {
		assert.Equal(t, input.ModifierMeta, pasteModifier())
	} else {
		assert.Equal(t, input.ModifierCtrl, pasteModifier())
	}
}

func TestAllocatorOptionsIncludeProfile(t *testing.T) {
	base := len(allocatorOptions(Config{}))
	assert.Equal(t, base+1, len(allocatorOptions(Config{ProfileDir: t.TempDir()})))
}
