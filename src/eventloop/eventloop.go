package eventloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ai-book-reader/src/automation"
	"ai-book-reader/src/config"
	"ai-book-reader/src/document"
	"ai-book-reader/src/metrics"
	"ai-book-reader/src/notification"
	"ai-book-reader/src/page"
	"ai-book-reader/src/selectors"
	"ai-book-reader/src/session"
	"ai-book-reader/src/singleinstance"
	"ai-book-reader/src/worker"
)

// ErrBusy rejects a trigger while a run is in flight.
var ErrBusy = errors.New("Busy, please retry")

// Kind is the type of run a trigger starts.
type Kind string

const (
	// KindExplain pastes the current page and asks for an explanation.
	KindExplain Kind = "explain"
	// KindStartup sends the reading-session startup prompt alone.
	KindStartup Kind = "startup"
)

// Host is the browser side of the loop.
type Host interface {
	Page() page.Page
	OpenDocument(ctx context.Context, path string) error
}

// Clipboard receives the captured page and is read back by the injector.
type Clipboard interface {
	WriteImage(png []byte) error
	ReadItems() ([]page.Blob, error)
}

// StatusDisplay reflects busy state, e.g. in the tray tooltip.
type StatusDisplay interface {
	SetBusy(busy bool)
}

// Deps are the loop's collaborators. Metrics, Status and Server are
// optional; Sleep defaults to automation.Sleep.
type Deps struct {
	Host      Host
	Registry  *selectors.Registry
	Clipboard Clipboard
	// Capture returns the current page as PNG.
	Capture  func(ctx context.Context) ([]byte, error)
	Notifier *notification.Notifier
	Metrics  *metrics.Recorder
	Status   StatusDisplay
	Server   singleinstance.Server
	Sleep    automation.Sleeper
	Log      logrus.FieldLogger
}

// Loop is the single-threaded coordinator for hotkey, tray and delegated
// CLI requests. All state below is owned by the Run goroutine.
type Loop struct {
	deps    Deps
	cfg     *config.Config
	pool    *worker.Pool
	log     logrus.FieldLogger
	limiter *rate.Limiter

	actions chan action
	results chan result
	done    chan struct{}

	busy            bool
	cancelRun       context.CancelFunc
	cancelRequested bool
	runID           string
	runKind         Kind
	runStarted      time.Time
	current         *document.Document
}

type action struct {
	kind   actionKind
	run    Kind
	path   string
	target resultTarget
}

type actionKind int

const (
	actionRun actionKind = iota
	actionCancel
	actionOpen
)

type result struct {
	res    session.Result
	kind   Kind
	target resultTarget
	cancel context.CancelFunc
}

// resultTarget receives the outcome of one run.
type resultTarget interface {
	OnBusy()
	OnOutcome(automation.Outcome)
	Close()
}

// localTarget serves hotkey and tray triggers; the outcome is already
// surfaced through notifications.
type localTarget struct{}

func (localTarget) OnBusy()                      {}
func (localTarget) OnOutcome(automation.Outcome) {}
func (localTarget) Close()                       {}

type delegatedTarget struct {
	conn singleinstance.Conn
}

func (t delegatedTarget) OnBusy() { _ = t.conn.RespondError(ErrBusy.Error()) }

func (t delegatedTarget) OnOutcome(o automation.Outcome) {
	if o.OK() {
		_ = t.conn.RespondSuccess(o.Describe())
		return
	}
	_ = t.conn.RespondError(fmt.Sprintf("%s: %s", o.Code, o.Describe()))
}

func (t delegatedTarget) Close() { _ = t.conn.Close() }

// New creates a loop. deps.Host, deps.Registry and deps.Capture are required
// by the time a run starts.
func New(cfg *config.Config, deps Deps) *Loop {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Sleep == nil {
		deps.Sleep = automation.Sleep
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.New(deps.Log, notification.Log{Logger: deps.Log})
	}
	return &Loop{
		deps:    deps,
		cfg:     cfg,
		pool:    worker.New(deps.Log),
		log:     deps.Log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		actions: make(chan action, 4),
		results: make(chan result, 1),
		done:    make(chan struct{}),
	}
}

// Hotkey posts an explain trigger. Key-repeat bursts are absorbed by a
// one-per-second limiter.
func (l *Loop) Hotkey() {
	if !l.limiter.Allow() {
		l.deps.Metrics.Rejected("rate_limited")
		return
	}
	l.Trigger(KindExplain)
}

// Trigger posts a run request. It never blocks; a full queue drops it.
func (l *Loop) Trigger(kind Kind) {
	l.post(action{kind: actionRun, run: kind, target: localTarget{}})
}

// Cancel aborts the in-flight run, if any.
func (l *Loop) Cancel() { l.post(action{kind: actionCancel}) }

// Open makes path the current document.
func (l *Loop) Open(path string) { l.post(action{kind: actionOpen, path: path}) }

func (l *Loop) post(a action) {
	select {
	case l.actions <- a:
	default:
		l.log.Warn("event loop queue full, trigger dropped")
	}
}

// Run processes triggers, delegated requests and results until ctx is
// cancelled. An in-flight run is cancelled on the way out.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()
	defer close(l.done)
	defer l.cancelInFlight()

	reqCh := make(chan singleinstance.Conn, 4)
	if srv := l.deps.Server; srv != nil {
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Close()
		l.log.WithField("port", srv.Port()).Info("resident listening")
		go func() {
			defer close(reqCh)
			for {
				conn, err := srv.Next(ctx)
				if err != nil {
					return
				}
				select {
				case reqCh <- conn:
				case <-ctx.Done():
					_ = conn.Close()
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-l.actions:
			l.handleAction(ctx, a)
		case conn, ok := <-reqCh:
			if !ok {
				reqCh = nil
				continue
			}
			l.handleConn(ctx, conn)
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

func (l *Loop) handleAction(ctx context.Context, a action) {
	switch a.kind {
	case actionRun:
		l.startRun(ctx, a.run, a.target)
	case actionCancel:
		l.cancelInFlight()
	case actionOpen:
		if _, err := l.open(ctx, a.path); err != nil {
			l.log.WithError(err).Warn("open document failed")
			l.deps.Notifier.Alert("AI Book Reader", err.Error())
		}
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	req := conn.Request()
	switch req.Command {
	case singleinstance.CommandExplain:
		l.startRun(ctx, KindExplain, delegatedTarget{conn: conn})
		return
	case singleinstance.CommandStart:
		l.startRun(ctx, KindStartup, delegatedTarget{conn: conn})
		return
	case singleinstance.CommandCancel:
		if l.cancelInFlight() {
			_ = conn.RespondSuccess("cancelled")
		} else {
			_ = conn.RespondSuccess("nothing to cancel")
		}
	case singleinstance.CommandStatus:
		_ = conn.RespondSuccess(l.status())
	case singleinstance.CommandDetect:
		// Detection only reads the page; it may overlap a run.
		go func() {
			defer conn.Close()
			text, err := l.detect(ctx)
			if err != nil {
				_ = conn.RespondError(err.Error())
				return
			}
			_ = conn.RespondSuccess(text)
		}()
		return
	case singleinstance.CommandOpen:
		doc, err := l.open(ctx, req.Arg)
		if err != nil {
			_ = conn.RespondError(err.Error())
		} else {
			_ = conn.RespondSuccess("opened " + doc.DisplayName())
		}
	default:
		_ = conn.RespondError("unsupported command " + string(req.Command))
	}
	_ = conn.Close()
}

func (l *Loop) setBusy(b bool) {
	l.busy = b
	if l.deps.Status != nil {
		l.deps.Status.SetBusy(b)
	}
}

func (l *Loop) startRun(ctx context.Context, kind Kind, target resultTarget) {
	if l.busy {
		l.log.WithField("kind", kind).Info("busy, trigger rejected")
		l.deps.Metrics.Rejected("busy")
		target.OnBusy()
		target.Close()
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	runID := uuid.NewString()
	task := l.task(kind, runID)

	l.setBusy(true)
	submitted := l.pool.Submit(runCtx, task, func(res session.Result) {
		select {
		case l.results <- result{res: res, kind: kind, target: target, cancel: cancel}:
		case <-l.done:
			cancel()
			target.Close()
		}
	})
	if !submitted {
		cancel()
		l.setBusy(false)
		l.deps.Metrics.Rejected("busy")
		target.OnBusy()
		target.Close()
		return
	}
	l.cancelRun = cancel
	l.cancelRequested = false
	l.runID = runID
	l.runKind = kind
	l.runStarted = time.Now()
	l.deps.Metrics.Started()
	l.log.WithFields(logrus.Fields{"run_id": runID, "kind": kind}).Info("run started")
}

// task builds the worker task for one run. It reads only values captured
// here so the worker never touches loop state.
func (l *Loop) task(kind Kind, runID string) worker.Task {
	opts := session.Options{
		Registry:              l.deps.Registry,
		Timing:                l.cfg.Timing,
		Sleep:                 l.deps.Sleep,
		Clipboard:             l.deps.Clipboard,
		Notifier:              l.deps.Notifier,
		Log:                   l.log,
		AppendClipboardImages: l.cfg.AppendClipboardImages,
		AppendPrompt:          l.cfg.AppendPrompt(),
		RunID:                 runID,
		Payload:               session.Payload{PromptText: l.cfg.ExplainPrompt},
	}
	if l.current != nil {
		opts.Payload.DisplayName = l.current.DisplayName()
	}
	if kind == KindStartup {
		opts.Payload.PromptText = l.cfg.StartupPrompt
		opts.SkipImage = true
	}
	host, capture, clip := l.deps.Host, l.deps.Capture, l.deps.Clipboard

	return func(ctx context.Context) session.Result {
		if host != nil {
			opts.Page = host.Page()
		}
		if !opts.SkipImage {
			if err := capturePage(ctx, capture, clip); err != nil {
				return session.Result{RunID: runID, Outcome: automation.Failure(err)}
			}
		}
		return session.Execute(ctx, opts)
	}
}

func capturePage(ctx context.Context, capture func(context.Context) ([]byte, error), clip Clipboard) error {
	if capture == nil || clip == nil {
		return errors.New("page capture unavailable")
	}
	png, err := capture(ctx)
	if err != nil {
		return fmt.Errorf("capture page: %w", err)
	}
	if err := clip.WriteImage(png); err != nil {
		return fmt.Errorf("copy page to clipboard: %w", err)
	}
	return nil
}

func (l *Loop) handleResult(r result) {
	defer r.target.Close()
	cancelled := l.cancelRequested
	r.cancel()
	l.cancelRun = nil
	l.cancelRequested = false
	l.setBusy(false)
	l.deps.Metrics.Finished(string(r.kind), string(r.res.Outcome.Code), time.Since(l.runStarted))

	o := r.res.Outcome
	l.log.WithFields(logrus.Fields{
		"run_id":  r.res.RunID,
		"kind":    r.kind,
		"outcome": o.String(),
	}).Info("run result")

	// A user cancel is not worth an alert; success was already notified.
	if !o.OK() && !cancelled {
		l.deps.Notifier.Alert("AI Book Reader", o.Describe())
	}
	r.target.OnOutcome(o)
}

// cancelInFlight cancels the running task and reports whether there was one.
func (l *Loop) cancelInFlight() bool {
	if l.cancelRun == nil {
		return false
	}
	l.log.WithField("run_id", l.runID).Info("cancelling run")
	l.cancelRequested = true
	l.cancelRun()
	return true
}

func (l *Loop) open(ctx context.Context, path string) (document.Document, error) {
	if strings.TrimSpace(path) == "" {
		return document.Document{}, errors.New("no document path given")
	}
	doc, err := document.Open(path)
	if err != nil {
		if !errors.Is(err, document.ErrMetadata) {
			return doc, err
		}
		l.log.WithError(err).Warn("pdf metadata unavailable, using file name")
	}
	if l.deps.Host != nil {
		if err := l.deps.Host.OpenDocument(ctx, path); err != nil {
			return doc, fmt.Errorf("show document: %w", err)
		}
	}
	l.current = &doc
	l.log.WithFields(logrus.Fields{"book": doc.DisplayName(), "pages": doc.PageCount}).Info("document opened")
	return doc, nil
}

func (l *Loop) status() string {
	var b strings.Builder
	if l.busy {
		fmt.Fprintf(&b, "busy: %s run %s (%s)\n", l.runKind, l.runID, time.Since(l.runStarted).Round(time.Second))
	} else {
		b.WriteString("idle\n")
	}
	if l.current != nil {
		fmt.Fprintf(&b, "document: %s (%d pages)\n", l.current.DisplayName(), l.current.PageCount)
	} else {
		b.WriteString("document: none\n")
	}
	if srv := l.deps.Server; srv != nil {
		start, end := singleinstance.PortRange()
		fmt.Fprintf(&b, "listening: port %d (range %d-%d)\n", srv.Port(), start, end)
	}
	return b.String()
}

func (l *Loop) detect(ctx context.Context) (string, error) {
	if l.deps.Host == nil || l.deps.Host.Page() == nil {
		return "", errors.New("page unavailable")
	}
	d := &automation.Detector{Page: l.deps.Host.Page(), Registry: l.deps.Registry, Log: l.log}
	state, m, err := d.Detect(ctx)
	if err != nil {
		return "", err
	}
	if m.Found() {
		return fmt.Sprintf("%s (%s)", state, m.Selector), nil
	}
	return string(state), nil
}
