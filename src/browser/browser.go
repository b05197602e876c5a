// Package browser drives the hosted chat page and the PDF reader tab over
// the Chrome DevTools Protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"ai-book-reader/src/page"
)

// ErrProfileLocked is returned when another resident already owns the
// browser profile directory.
var ErrProfileLocked = errors.New("browser profile is in use by another instance")

const lockFileName = "ai-book-reader.lock"

// Config holds browser launch settings.
type Config struct {
	// RemoteURL attaches to a running browser instead of launching one.
	RemoteURL string
	// ProfileDir is the persistent user data directory of a launched browser.
	ProfileDir string
	ChatURL    string
	Headless   bool
	// Debug opens devtools for every tab.
	Debug bool
	// Timeout bounds every single page call.
	Timeout time.Duration
}

// Browser owns the browser process, the chat tab and the optional reader tab.
type Browser struct {
	mu            sync.Mutex
	lock          *flock.Flock
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	chat          *Tab
	reader        *Tab
	timeout       time.Duration
	log           logrus.FieldLogger
}

// Launch starts (or attaches to) the browser and opens the chat page.
func Launch(cfg Config, log logrus.FieldLogger) (*Browser, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Browser{timeout: cfg.Timeout, log: log}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		log.WithField("url", cfg.RemoteURL).Info("attaching to running browser")
	} else {
		lock, err := lockProfile(cfg.ProfileDir)
		if err != nil {
			return nil, err
		}
		b.lock = lock
		allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
		log.WithFields(logrus.Fields{"profile": cfg.ProfileDir, "headless": cfg.Headless}).Info("launching browser")
	}
	b.browserCtx, b.browserCancel = chromedp.NewContext(allocCtx)

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	// The CDP session binds to the context of the first Run, so it must not
	// be a derived timeout context.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(tabCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			tabCancel()
			b.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(cfg.Timeout):
		tabCancel()
		b.Close()
		return nil, fmt.Errorf("start browser: timed out after %v", cfg.Timeout)
	}
	b.chat = newTab(tabCtx, tabCancel, cfg.Timeout)

	if cfg.ChatURL != "" {
		if err := b.chat.Navigate(context.Background(), cfg.ChatURL); err != nil {
			b.Close()
			return nil, fmt.Errorf("open chat: %w", err)
		}
		if err := b.chat.grantClipboard(cfg.ChatURL); err != nil {
			log.WithError(err).Warn("clipboard permission not granted")
		}
	}
	log.Info("browser started")
	return b, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
	copy(opts, chromedp.DefaultExecAllocatorOptions[:])
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("auto-open-devtools-for-tabs", cfg.Debug),
		chromedp.WindowSize(1400, 900),
	)
	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}
	return opts
}

// lockProfile takes the exclusive profile lock. An empty dir needs no lock.
func lockProfile(dir string) (*flock.Flock, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock profile: %w", err)
	}
	if !ok {
		return nil, ErrProfileLocked
	}
	return lock, nil
}

// Chat returns the chat tab, which implements page.Page.
func (b *Browser) Chat() *Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chat
}

// Page returns the chat tab as a page accessor, or nil once closed.
func (b *Browser) Page() page.Page {
	if t := b.Chat(); t != nil {
		return t
	}
	return nil
}

// OpenDocument shows the PDF at path in the reader tab, creating the tab on
// first use.
func (b *Browser) OpenDocument(ctx context.Context, path string) error {
	u, err := fileURL(path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reader != nil {
		return b.reader.Navigate(ctx, u)
	}

	var id target.ID
	if err := chromedp.Run(b.browserCtx, chromedp.ActionFunc(func(actx context.Context) error {
		var err error
		id, err = target.CreateTarget(u).Do(actx)
		return err
	})); err != nil {
		return fmt.Errorf("open reader tab: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return fmt.Errorf("attach reader tab: %w", err)
	}
	b.reader = newTab(tabCtx, tabCancel, b.timeout)
	b.log.WithField("path", path).Debug("reader tab opened")
	return nil
}

// CaptureReader returns a PNG screenshot of the reader tab's viewport.
func (b *Browser) CaptureReader(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	reader := b.reader
	b.mu.Unlock()
	if reader == nil {
		return nil, errors.New("no document open")
	}
	return reader.Screenshot(ctx)
}

// Close shuts the browser down and releases the profile lock.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range []*Tab{b.reader, b.chat} {
		if t != nil {
			t.cancel()
		}
	}
	b.reader, b.chat = nil, nil
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	if b.lock != nil {
		if err := b.lock.Unlock(); err != nil {
			return fmt.Errorf("unlock profile: %w", err)
		}
	}
	b.log.Info("browser closed")
	return nil
}

func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String(), nil
}

// grantClipboard lets the chat origin read and write the clipboard without
// a permission prompt.
func (t *Tab) grantClipboard(origin string) error {
	return t.run(context.Background(), chromedp.ActionFunc(func(ctx context.Context) error {
		return cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{
			cdpbrowser.PermissionTypeClipboardReadWrite,
			cdpbrowser.PermissionTypeClipboardSanitizedWrite,
		}).WithOrigin(origin).Do(ctx)
	}))
}

// Screenshot captures the tab's viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
		data, err := cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatPng).
			Do(actx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}
