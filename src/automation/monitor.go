package automation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ai-book-reader/src/selectors"
)

// Phase is a state of the submission state machine.
type Phase string

const (
	PhaseWaitingForSendReady Phase = "waiting_for_send_ready"
	PhaseReadyToClick        Phase = "ready_to_click"
	PhaseConfirmSubmitted    Phase = "confirm_submitted"
	PhaseMonitoring          Phase = "monitoring"
	PhaseDone                Phase = "done"
	PhaseAborted             Phase = "aborted"
)

// Monitor drives send -> working -> done with bounded waits. It never
// retries: every ceiling is terminal.
type Monitor struct {
	Detector *Detector
	Timing   Timing
	Sleep    Sleeper
	Log      logrus.FieldLogger

	// OnPhase, when set, observes every phase transition.
	OnPhase func(Phase)
}

// Run executes the state machine. It returns CodeSuccess when the answer
// finished and the abort reason otherwise. A done ctx yields an error
// outcome and stops all further polling.
func (m *Monitor) Run(ctx context.Context) Outcome {
	m.enter(PhaseWaitingForSendReady)
	if o, ok := m.waitSendReady(ctx); !ok {
		return m.abort(o)
	}

	m.enter(PhaseReadyToClick)
	if o, ok := m.click(ctx); !ok {
		return m.abort(o)
	}

	m.enter(PhaseConfirmSubmitted)
	if err := m.sleep(ctx, m.Timing.PostClickSettle); err != nil {
		return m.abort(Failure(err))
	}
	state, _, err := m.Detector.Detect(ctx)
	if err != nil {
		return m.abort(Failure(err))
	}
	if state != StateAIWorking {
		m.logger().WithField("state", state).Info("no stop button after send")
		return m.abort(Result(CodeSendFailed))
	}

	m.enter(PhaseMonitoring)
	if o, ok := m.waitDone(ctx); !ok {
		return m.abort(o)
	}
	m.enter(PhaseDone)
	return Result(CodeSuccess)
}

// waitSendReady polls until the send button is present and enabled.
// MaxAttempts polls happen at most, with a sleep between consecutive polls.
func (m *Monitor) waitSendReady(ctx context.Context) (Outcome, bool) {
	budget := m.Timing.SendReadyMaxAttempts
	for attempt := 1; ; attempt++ {
		state, match, err := m.Detector.Detect(ctx)
		if err != nil {
			return Failure(err), false
		}
		log := m.logger().WithFields(logrus.Fields{"state": state, "attempt": attempt, "max": budget})
		switch {
		case state == StateReadyToSend && !match.Disabled:
			log.Debug("send button ready")
			return Outcome{}, true
		case state == StateReadyToSend:
			log.Debug("send button disabled")
		case state == StateAIWorking:
			log.Info("model started working before send")
			return Result(CodeAIWorking), false
		default:
			log.Debug("waiting for send button")
		}
		if attempt >= budget {
			return Result(CodeWaitSendTimeout), false
		}
		if err := m.sleep(ctx, m.Timing.SendReadyPollInterval); err != nil {
			return Failure(err), false
		}
	}
}

// click resolves the send button afresh and clicks it.
func (m *Monitor) click(ctx context.Context) (Outcome, bool) {
	match, ok, err := m.Detector.First(ctx, selectors.RoleSend)
	if err != nil {
		return Failure(err), false
	}
	if !ok {
		return Result(CodeNoSendButton), false
	}
	if match.Disabled {
		return Result(CodeSendButtonDisabled), false
	}
	if err := m.Detector.Page.Click(ctx, match.Selector); err != nil {
		if ctx.Err() != nil {
			return Failure(ctx.Err()), false
		}
		m.logger().WithField("selector", match.Selector).WithError(err).Warn("click send failed")
		return Result(CodeSendFailed), false
	}
	m.logger().WithField("selector", match.Selector).Debug("send clicked")
	return Outcome{}, true
}

// waitDone polls until the stop button is gone.
func (m *Monitor) waitDone(ctx context.Context) (Outcome, bool) {
	budget := m.Timing.MonitorMaxAttempts
	started := time.Now()
	for attempt := 1; ; attempt++ {
		// A page that cannot be observed is not a finished answer.
		state, _, err := m.Detector.Detect(ctx)
		if err != nil {
			return Failure(err), false
		}
		if state != StateAIWorking {
			m.logger().WithFields(logrus.Fields{
				"state":   state,
				"attempt": attempt,
				"elapsed": time.Since(started).Round(time.Millisecond),
			}).Info("answer finished")
			return Outcome{}, true
		}
		if attempt >= budget {
			return Result(CodeMonitorTimeout), false
		}
		m.logger().WithFields(logrus.Fields{"attempt": attempt, "max": budget}).Debug("model still working")
		if err := m.sleep(ctx, m.Timing.MonitorPollInterval); err != nil {
			return Failure(err), false
		}
	}
}

func (m *Monitor) enter(p Phase) {
	m.logger().WithField("phase", p).Debug("phase")
	if m.OnPhase != nil {
		m.OnPhase(p)
	}
}

func (m *Monitor) abort(o Outcome) Outcome {
	m.logger().WithField("outcome", o.String()).Info("submission aborted")
	m.enter(PhaseAborted)
	return o
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	if m.Sleep == nil {
		return Sleep(ctx, d)
	}
	return m.Sleep(ctx, d)
}

func (m *Monitor) logger() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}
