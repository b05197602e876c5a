package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ai-book-reader/src/browser"
	"ai-book-reader/src/config"
	"ai-book-reader/src/eventloop"
	"ai-book-reader/src/hotkey"
	"ai-book-reader/src/metrics"
	"ai-book-reader/src/notification"
	"ai-book-reader/src/screenshot"
	"ai-book-reader/src/runtimeinit"
	"ai-book-reader/src/singleinstance"
	"ai-book-reader/src/tray"
)

const appTitle = "AI Book Reader"

// runResident owns the browser, hotkey and tray until the user quits.
func runResident(opts mainOptions, book string) error {
	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:        opts.loadOptions(),
		ShowBlockingErrors: true,
	})
	if err != nil {
		return err
	}
	cfg, log, reg := rt.Config, rt.Log, rt.Registry

	if book != "" {
		if book, err = filepath.Abs(book); err != nil {
			return fmt.Errorf("resolve book: %w", err)
		}
	}

	probeCtx, probeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	port, running := singleinstance.DetectResidentPort(probeCtx)
	probeCancel()
	if running {
		if book != "" {
			return delegate(context.Background(), os.Stdout, singleinstance.Request{Command: singleinstance.CommandOpen, Arg: book})
		}
		return fmt.Errorf("already running on port %d", port)
	}

	enableDPIAwareness(log)

	capture, err := newCapture(cfg)
	if err != nil {
		return err
	}

	b, err := browser.Launch(browser.Config{
		RemoteURL:  cfg.CDPURL,
		ProfileDir: cfg.ProfileDir(),
		ChatURL:    cfg.ChatURL,
		Headless:   cfg.Headless,
		Debug:      cfg.Debug,
	}, log)
	if errors.Is(err, browser.ErrProfileLocked) {
		notification.ShowBlockingError(appTitle, "Another AI Book Reader is already using "+cfg.ProfileDir())
		return err
	}
	if err != nil {
		return err
	}
	defer b.Close()
	if capture == nil {
		capture = b.CaptureReader
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := tray.New(log)
	notifier := notification.New(log, notifierSinks(cfg, b, t, log)...)

	rec := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := rec.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	loop := eventloop.New(cfg, eventloop.Deps{
		Host:      b,
		Registry:  reg,
		Clipboard: rt.Clipboard,
		Capture:   capture,
		Notifier:  notifier,
		Metrics:   rec,
		Status:    t,
		Server:    singleinstance.NewServer(),
		Log:       log,
	})

	if cfg.SelectorsFile != "" {
		path := cfg.SelectorsFile
		err := config.Watch(ctx, path, func() {
			if err := reg.LoadFile(path); err != nil {
				log.WithError(err).Warn("selector reload failed")
				return
			}
			log.WithField("path", path).Info("selector overrides reloaded")
		})
		if err != nil {
			log.WithError(err).Warn("selector file not watched")
		}
	}

	if err := hotkey.Listen(ctx, cfg.Hotkey, loop.Hotkey, log); err != nil {
		log.WithError(err).Warn("hotkey disabled; use the tray menu or the explain command")
	}
	t.SetAbout(fmt.Sprintf("Hotkey: %s", cfg.Hotkey))

	loopErr := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		loopErr <- err
		t.Quit()
	}()
	if book != "" {
		loop.Open(book)
	}

	t.Run(tray.Actions{
		Explain: func() { loop.Trigger(eventloop.KindExplain) },
		Start:   func() { loop.Trigger(eventloop.KindStartup) },
		Cancel:  loop.Cancel,
		Quit:    stop,
	})

	stop()
	err = <-loopErr
	log.Info("resident stopped")
	return err
}

// newCapture returns the screen grabber for CAPTURE_SOURCE=screen, or nil
// when the reader tab is the source.
func newCapture(cfg *config.Config) (func(context.Context) ([]byte, error), error) {
	if cfg.CaptureSource != config.CaptureSourceScreen {
		return nil, nil
	}
	region, err := screenshot.ParseRegion(cfg.CaptureRegion)
	if err != nil {
		return nil, fmt.Errorf("CAPTURE_REGION: %w", err)
	}
	return func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return screenshot.Capture(region)
	}, nil
}

func notifierSinks(cfg *config.Config, b *browser.Browser, t *tray.Tray, log logrus.FieldLogger) []notification.Sink {
	sinks := []notification.Sink{
		notification.PageEvent{Page: b.Page()},
		t,
		notification.Log{Logger: log},
	}
	if cfg.Notifications {
		sinks = append(sinks, notification.Desktop{})
	}
	return sinks
}
