package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-book-reader/src/config"
	"ai-book-reader/src/singleinstance"
)

type fakeClient struct {
	reqs  []singleinstance.Request
	reply string
	err   error
}

func (c *fakeClient) Delegate(ctx context.Context, req singleinstance.Request) (string, error) {
	c.reqs = append(c.reqs, req)
	return c.reply, c.err
}

func withClient(t *testing.T, c *fakeClient) {
	t.Helper()
	prev := newClient
	newClient = func() delegator { return c }
	t.Cleanup(func() { newClient = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&mainOptions{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Maps enable-debug",
			in:   []string{"ai-book-reader", "--enable-debug"},
			out:  []string{"ai-book-reader", "--debug"},
		},
		{
			name: "Normalizes long single dash flags",
			in:   []string{"ai-book-reader", "-data-dir", "/tmp/d", "-cdp-url=http://localhost:9222"},
			out:  []string{"ai-book-reader", "--data-dir", "/tmp/d", "--cdp-url=http://localhost:9222"},
		},
		{
			name: "Leaves commands and other flags unchanged",
			in:   []string{"ai-book-reader", "open", "book.pdf", "--headless"},
			out:  []string{"ai-book-reader", "open", "book.pdf", "--headless"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, normalizeLegacyArgs(tt.in))
		})
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--debug", "--data-dir", "/tmp/d", "--headless"}))

	assert.Equal(t, config.LoadOptions{
		Debug:            true,
		DataDirOverride:  "/tmp/d",
		HeadlessOverride: "true",
	}, opts.loadOptions())
}

func TestDelegateCommands(t *testing.T) {
	tests := []struct {
		arg  string
		want singleinstance.Command
	}{
		{"explain", singleinstance.CommandExplain},
		{"start", singleinstance.CommandStart},
		{"cancel", singleinstance.CommandCancel},
		{"status", singleinstance.CommandStatus},
		{"detect", singleinstance.CommandDetect},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			c := &fakeClient{reply: "ok\n"}
			withClient(t, c)

			out, err := execute(t, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, "ok\n", out)
			assert.Equal(t, []singleinstance.Request{{Command: tt.want}}, c.reqs)
		})
	}
}

func TestOpenSendsAbsolutePath(t *testing.T) {
	c := &fakeClient{reply: "opened SICP"}
	withClient(t, c)

	_, err := execute(t, "open", "SICP.pdf")
	require.NoError(t, err)
	require.Len(t, c.reqs, 1)
	assert.Equal(t, singleinstance.CommandOpen, c.reqs[0].Command)
	assert.True(t, filepath.IsAbs(c.reqs[0].Arg))
	assert.Equal(t, "SICP.pdf", filepath.Base(c.reqs[0].Arg))
}

func TestOpenRequiresPath(t *testing.T) {
	withClient(t, &fakeClient{})
	_, err := execute(t, "open")
	assert.Error(t, err)
}

func TestDelegateWithoutResident(t *testing.T) {
	withClient(t, &fakeClient{err: singleinstance.ErrNotRunning})

	_, err := execute(t, "explain")
	require.ErrorIs(t, err, singleinstance.ErrNotRunning)
	assert.Contains(t, err.Error(), "start ai-book-reader first")
}

func TestNewCaptureSources(t *testing.T) {
	capture, err := newCapture(&config.Config{CaptureSource: config.CaptureSourceTab})
	require.NoError(t, err)
	assert.Nil(t, capture, "tab capture comes from the browser")

	capture, err = newCapture(&config.Config{CaptureSource: config.CaptureSourceScreen, CaptureRegion: "0,0,10,10"})
	require.NoError(t, err)
	assert.NotNil(t, capture)

	_, err = newCapture(&config.Config{CaptureSource: config.CaptureSourceScreen, CaptureRegion: "1,2"})
	assert.ErrorContains(t, err, "CAPTURE_REGION")
}
