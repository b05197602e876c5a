package eventloop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-book-reader/src/automation"
	"ai-book-reader/src/config"
	"ai-book-reader/src/metrics"
	"ai-book-reader/src/notification"
	"ai-book-reader/src/page"
	"ai-book-reader/src/page/pagetest"
	"ai-book-reader/src/selectors"
	"ai-book-reader/src/singleinstance"
)

const (
	stopSel   = ".stop"
	sendSel   = ".send"
	editorSel = "#editor"
)

var (
	ready   = pagetest.DOM{sendSel: pagetest.Present(), editorSel: pagetest.Present()}
	working = pagetest.DOM{stopSel: pagetest.Present(), editorSel: pagetest.Present()}
)

type fakeServer struct {
	conns  chan singleinstance.Conn
	closed atomic.Bool
}

func (s *fakeServer) Start(ctx context.Context) error { return nil }
func (s *fakeServer) Port() int                       { return 0 }
func (s *fakeServer) Close() error {
	s.closed.Store(true)
	return nil
}
func (s *fakeServer) Next(ctx context.Context) (singleinstance.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c := <-s.conns:
		return c, nil
	}
}

type fakeConn struct {
	req   singleinstance.Request
	reply chan string
}

func (c *fakeConn) Request() singleinstance.Request { return c.req }
func (c *fakeConn) RespondSuccess(text string) error {
	c.reply <- "SUCCESS " + text
	return nil
}
func (c *fakeConn) RespondError(msg string) error {
	c.reply <- "ERROR " + msg
	return nil
}
func (c *fakeConn) Close() error { return nil }

type fakeHost struct {
	page   page.Page
	mu     sync.Mutex
	opened []string
}

func (h *fakeHost) Page() page.Page { return h.page }
func (h *fakeHost) OpenDocument(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, path)
	return nil
}

type fakeClipboard struct {
	mu     sync.Mutex
	images [][]byte
}

func (c *fakeClipboard) WriteImage(png []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = append(c.images, png)
	return nil
}
func (c *fakeClipboard) ReadItems() ([]page.Blob, error) { return nil, nil }

type recordingSink struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (s *recordingSink) Show(title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, body)
	return nil
}

func (s *recordingSink) Bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

type busyRecorder struct{ changes chan bool }

func (b busyRecorder) SetBusy(busy bool) { b.changes <- busy }

type harness struct {
	loop    *Loop
	srv     *fakeServer
	page    *pagetest.Page
	host    *fakeHost
	clip    *fakeClipboard
	sink    *recordingSink
	busy    busyRecorder
	capture func(ctx context.Context) ([]byte, error)
	sleep   automation.Sleeper
}

func newHarness(t *testing.T, script ...pagetest.DOM) *harness {
	t.Helper()
	p := pagetest.New(script...)
	h := &harness{
		srv:  &fakeServer{conns: make(chan singleinstance.Conn)},
		page: p,
		host: &fakeHost{page: p},
		clip: &fakeClipboard{},
		sink: &recordingSink{},
		busy: busyRecorder{changes: make(chan bool, 16)},
		capture: func(ctx context.Context) ([]byte, error) {
			return []byte("png"), nil
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.Advance()
			return nil
		},
	}
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	log, _ := test.NewNullLogger()
	reg := selectors.New()
	reg.Set(selectors.RoleStop, []string{stopSel})
	reg.Set(selectors.RoleSend, []string{sendSel})
	reg.Set(selectors.RoleVoice, []string{".voice"})
	reg.SetEditor(editorSel)

	cfg := &config.Config{
		Timing:        automation.DefaultTiming(),
		ExplainPrompt: "Explain this page",
		StartupPrompt: "You are my tutor",
		PromptMode:    config.PromptModeReplace,
	}
	h.loop = New(cfg, Deps{
		Host:      h.host,
		Registry:  reg,
		Clipboard: h.clip,
		Capture:   func(ctx context.Context) ([]byte, error) { return h.capture(ctx) },
		Notifier:  notification.New(log, h.sink),
		Metrics:   metrics.New(),
		Status:    h.busy,
		Server:    h.srv,
		Sleep:     func(ctx context.Context, d time.Duration) error { return h.sleep(ctx, d) },
		Log:       log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// send delivers a delegated request and returns its reply conn.
func (h *harness) send(t *testing.T, cmd singleinstance.Command, arg string) *fakeConn {
	t.Helper()
	c := &fakeConn{req: singleinstance.Request{Command: cmd, Arg: arg}, reply: make(chan string, 1)}
	select {
	case h.srv.conns <- c:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not accept request")
	}
	return c
}

func waitReply(t *testing.T, c *fakeConn) string {
	t.Helper()
	select {
	case r := <-c.reply:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
		return ""
	}
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case b := <-h.busy.changes:
			if !b {
				return
			}
		case <-deadline:
			t.Fatal("run did not finish")
		}
	}
}

func writeBook(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really a pdf"), 0o600))
	return path
}

func TestDelegatedExplainSucceeds(t *testing.T) {
	h := newHarness(t, ready, ready, working, working, ready)
	h.start(t)

	book := writeBook(t, "SICP.pdf")
	assert.Equal(t, "SUCCESS opened SICP", waitReply(t, h.send(t, singleinstance.CommandOpen, book)))
	assert.Equal(t, []string{book}, h.host.opened)

	reply := waitReply(t, h.send(t, singleinstance.CommandExplain, ""))
	assert.Equal(t, "SUCCESS Explanation finished", reply)

	assert.Equal(t, [][]byte{[]byte("png")}, h.clip.images)
	assert.Equal(t, []string{"Explanation of SICP finished"}, h.sink.Bodies())
	texts := h.page.CallsOf("replace-text")
	require.Len(t, texts, 1)
	assert.Equal(t, "Explain this page", texts[0].Arg)
	assert.Len(t, h.page.CallsOf("click"), 1)
}

func TestStartupPromptSkipsCapture(t *testing.T) {
	h := newHarness(t, ready, working, ready)
	captured := false
	h.capture = func(ctx context.Context) ([]byte, error) {
		captured = true
		return nil, errors.New("unexpected")
	}
	h.start(t)

	reply := waitReply(t, h.send(t, singleinstance.CommandStart, ""))
	assert.Equal(t, "SUCCESS Explanation finished", reply)
	assert.False(t, captured)
	assert.Empty(t, h.clip.images)
	assert.Empty(t, h.page.CallsOf("exec"), "no paste layers")
	assert.Equal(t, "You are my tutor", h.page.CallsOf("replace-text")[0].Arg)
}

func TestBusyRejectionAndCancel(t *testing.T) {
	h := newHarness(t, ready)
	entered := make(chan struct{}, 1)
	h.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}
	h.start(t)

	first := h.send(t, singleinstance.CommandExplain, "")
	<-entered

	second := waitReply(t, h.send(t, singleinstance.CommandExplain, ""))
	assert.Equal(t, "ERROR Busy, please retry", second)

	status := waitReply(t, h.send(t, singleinstance.CommandStatus, ""))
	assert.True(t, strings.HasPrefix(status, "SUCCESS busy: explain run "), status)

	assert.Equal(t, "SUCCESS cancelled", waitReply(t, h.send(t, singleinstance.CommandCancel, "")))

	reply := waitReply(t, first)
	assert.True(t, strings.HasPrefix(reply, "ERROR error: "), reply)
	assert.Contains(t, reply, context.Canceled.Error())
	assert.Empty(t, h.sink.Bodies(), "cancelled runs neither notify nor alert")
}

func TestIdleStatusAndCancel(t *testing.T) {
	h := newHarness(t, ready)
	h.start(t)

	start, end := singleinstance.PortRange()
	want := fmt.Sprintf("SUCCESS idle\ndocument: none\nlistening: port 0 (range %d-%d)\n", start, end)
	assert.Equal(t, want, waitReply(t, h.send(t, singleinstance.CommandStatus, "")))
	assert.Equal(t, "SUCCESS nothing to cancel", waitReply(t, h.send(t, singleinstance.CommandCancel, "")))
}

func TestDetectCommand(t *testing.T) {
	h := newHarness(t, ready)
	h.start(t)

	assert.Equal(t, "SUCCESS READY_TO_SEND (.send)", waitReply(t, h.send(t, singleinstance.CommandDetect, "")))
	h.page.Replace(pagetest.DOM{})
	assert.Equal(t, "SUCCESS UNKNOWN", waitReply(t, h.send(t, singleinstance.CommandDetect, "")))
}

func TestCaptureFailureAlerts(t *testing.T) {
	h := newHarness(t, ready)
	h.capture = func(ctx context.Context) ([]byte, error) { return nil, errors.New("no document open") }
	h.start(t)

	reply := waitReply(t, h.send(t, singleinstance.CommandExplain, ""))
	assert.Contains(t, reply, "capture page: no document open")
	assert.Empty(t, h.page.Calls())
	require.Len(t, h.sink.Bodies(), 1)
	assert.Contains(t, h.sink.Bodies()[0], "Automation failed")
}

func TestAIWorkingIsAlerted(t *testing.T) {
	h := newHarness(t, working)
	h.start(t)

	reply := waitReply(t, h.send(t, singleinstance.CommandExplain, ""))
	assert.Equal(t, "ERROR ai_working: "+automation.Result(automation.CodeAIWorking).Describe(), reply)
	assert.Equal(t, []string{automation.Result(automation.CodeAIWorking).Describe()}, h.sink.Bodies())
}

func TestOpenMissingFile(t *testing.T) {
	h := newHarness(t, ready)
	h.start(t)

	reply := waitReply(t, h.send(t, singleinstance.CommandOpen, filepath.Join(t.TempDir(), "none.pdf")))
	assert.True(t, strings.HasPrefix(reply, "ERROR "), reply)
	assert.Empty(t, h.host.opened)
}

func TestTrayTriggerRunsAndNotifies(t *testing.T) {
	h := newHarness(t, ready, ready, working, working, ready)
	h.start(t)

	h.loop.Trigger(KindExplain)
	h.waitIdle(t)
	assert.Equal(t, []string{"Explanation finished"}, h.sink.Bodies())
}

func TestHotkeyIsRateLimited(t *testing.T) {
	log, _ := test.NewNullLogger()
	l := New(&config.Config{}, Deps{Log: log})
	defer l.pool.Close()

	l.Hotkey()
	l.Hotkey()
	l.Hotkey()
	assert.Len(t, l.actions, 1)
}

func TestRunClosesServerOnExit(t *testing.T) {
	log, _ := test.NewNullLogger()
	srv := &fakeServer{conns: make(chan singleinstance.Conn)}
	l := New(&config.Config{}, Deps{Server: srv, Log: log})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.True(t, srv.closed.Load())
}
