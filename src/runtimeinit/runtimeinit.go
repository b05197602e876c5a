// Package runtimeinit prepares the process-wide pieces the resident needs
// before the browser starts.
package runtimeinit

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"ai-book-reader/src/clipboard"
	"ai-book-reader/src/config"
	"ai-book-reader/src/logutil"
	"ai-book-reader/src/notification"
	"ai-book-reader/src/selectors"
)

type Options struct {
	LoadOptions config.LoadOptions
	// ShowBlockingErrors reports fatal startup failures in a dialog as well.
	ShowBlockingErrors bool
}

// Runtime is the bootstrapped state shared by the resident's components.
type Runtime struct {
	Config    *config.Config
	Log       *logrus.Logger
	Registry  *selectors.Registry
	Clipboard *clipboard.System
}

func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logutil.Setup(cfg.EnableFileLogging, cfg.DataDir, cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"chat_url": cfg.ChatURL,
		"capture":  cfg.CaptureSource,
	}).Info("starting resident")

	clip := &clipboard.System{}
	if err := clip.Init(); err != nil {
		if opts.ShowBlockingErrors {
			notification.ShowBlockingError("Clipboard unavailable", fmt.Sprintf("Startup check failed: %v", err))
		}
		return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	return &Runtime{
		Config:    cfg,
		Log:       log,
		Registry:  LoadSelectors(cfg.SelectorsFile, log),
		Clipboard: clip,
	}, nil
}

// LoadSelectors returns the built-in chains with the overrides from path
// applied. A broken override file is logged and ignored.
func LoadSelectors(path string, log logrus.FieldLogger) *selectors.Registry {
	reg := selectors.New()
	if path == "" {
		return reg
	}
	if err := reg.LoadFile(path); err != nil {
		log.WithError(err).WithField("path", path).Warn("selector overrides not loaded")
		return reg
	}
	log.WithField("path", path).Debug("selector overrides loaded")
	return reg
}
