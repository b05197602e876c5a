package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ai-book-reader/src/automation"
	"ai-book-reader/src/page"
	"ai-book-reader/src/selectors"
)

// Payload is what the host wants explained: the prompt appended after the
// pasted page and the document name used in the completion notification.
type Payload struct {
	PromptText  string
	DisplayName string
}

// Notifier is told once the answer has genuinely finished.
type Notifier interface {
	Notify(ctx context.Context, displayName string)
}

// Options carries the collaborators and settings of one run.
type Options struct {
	Page      page.Page
	Registry  *selectors.Registry
	Timing    automation.Timing
	Sleep     automation.Sleeper
	Clipboard automation.ClipboardReader
	Notifier  Notifier
	Log       logrus.FieldLogger

	Payload Payload
	// SkipImage sends the prompt alone, without the paste layers.
	SkipImage             bool
	AppendClipboardImages bool
	AppendPrompt          bool

	// RunID correlates log lines; a random one is generated when empty.
	RunID   string
	OnPhase func(automation.Phase)
}

// Result is the outcome of Execute plus bookkeeping for the host.
type Result struct {
	RunID    string
	Outcome  automation.Outcome
	Duration time.Duration
}

// Execute runs detect -> inject -> submit -> monitor -> notify and returns
// exactly one outcome. No error or panic escapes: unexpected failures become
// an error outcome.
func Execute(ctx context.Context, opts Options) (res Result) {
	started := time.Now()
	res.RunID = opts.RunID
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	log := logger(opts).WithField("run_id", res.RunID)

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = automation.Failure(fmt.Errorf("panic: %v", r))
		}
		res.Duration = time.Since(started)
		log.WithFields(logrus.Fields{
			"outcome":  res.Outcome.String(),
			"duration": res.Duration.Round(time.Millisecond),
		}).Info("run finished")
	}()

	if err := validate(opts); err != nil {
		res.Outcome = automation.Failure(err)
		return res
	}
	res.Outcome = run(ctx, opts, log)
	return res
}

func validate(opts Options) error {
	if opts.Page == nil {
		return errors.New("page is required")
	}
	if opts.Registry == nil {
		return errors.New("selector registry is required")
	}
	return nil
}

func run(ctx context.Context, opts Options, log logrus.FieldLogger) automation.Outcome {
	timing := opts.Timing.Normalize()
	detector := &automation.Detector{Page: opts.Page, Registry: opts.Registry, Log: log}

	state, _, err := detector.Detect(ctx)
	if err != nil {
		return automation.Failure(err)
	}
	log.WithField("state", state).Info("initial state")
	switch state {
	case automation.StateAIWorking:
		return automation.Result(automation.CodeAIWorking)
	case automation.StateUnknown:
		return automation.Result(automation.CodeUnknownState)
	}

	injector := &automation.Injector{
		Page:                  opts.Page,
		Registry:              opts.Registry,
		Detector:              detector,
		Timing:                timing,
		Sleep:                 opts.Sleep,
		Log:                   log,
		Clipboard:             opts.Clipboard,
		AppendClipboardImages: opts.AppendClipboardImages,
		AppendPrompt:          opts.AppendPrompt,
	}
	found, err := injector.LocateEditor(ctx)
	if err != nil {
		return automation.Failure(err)
	}
	if !found {
		return automation.Result(automation.CodeNoEditor)
	}
	if err := injector.Inject(ctx, opts.Payload.PromptText, !opts.SkipImage); err != nil {
		return automation.Failure(err)
	}

	monitor := &automation.Monitor{
		Detector: detector,
		Timing:   timing,
		Sleep:    opts.Sleep,
		Log:      log,
		OnPhase:  opts.OnPhase,
	}
	outcome := monitor.Run(ctx)
	if !outcome.OK() {
		return outcome
	}

	if opts.Notifier == nil {
		log.Warn("no completion notifier configured")
	} else {
		opts.Notifier.Notify(ctx, opts.Payload.DisplayName)
	}
	return outcome
}

func logger(opts Options) logrus.FieldLogger {
	if opts.Log == nil {
		return logrus.StandardLogger()
	}
	return opts.Log
}
