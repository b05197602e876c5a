package notification

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// CompletionEvent is the event name the hosted page receives on completion.
const CompletionEvent = "ai-explanation-complete"

// Sink delivers a user-visible message. Implementations are fire-and-forget.
type Sink interface {
	Show(title, body string) error
}

// Completer is implemented by sinks that want the raw display name of a
// finished task rather than a formatted message.
type Completer interface {
	Completed(ctx context.Context, displayName string) error
}

// Notifier fans messages out to every configured sink. A sink failing or
// no sink being configured is logged, never returned.
type Notifier struct {
	Sinks []Sink
	Log   logrus.FieldLogger
}

// New returns a notifier delivering to sinks. Nil sinks are dropped.
func New(log logrus.FieldLogger, sinks ...Sink) *Notifier {
	n := &Notifier{Log: log}
	for _, s := range sinks {
		if s != nil {
			n.Sinks = append(n.Sinks, s)
		}
	}
	return n
}

// Notify announces that the explanation for displayName finished.
func (n *Notifier) Notify(ctx context.Context, displayName string) {
	title, body := CompletionMessage(displayName)
	if n == nil || len(n.Sinks) == 0 {
		logrus.WithField("book", displayName).Warn("completion notification dropped: no channel")
		return
	}
	for _, s := range n.Sinks {
		var err error
		if c, ok := s.(Completer); ok {
			err = c.Completed(ctx, displayName)
		} else {
			err = s.Show(title, body)
		}
		if err != nil {
			n.logger().WithField("sink", fmt.Sprintf("%T", s)).WithError(err).Warn("completion notification failed")
		}
	}
}

// Alert shows a non-completion message, such as why a run stopped. Sinks
// that only understand completions are skipped.
func (n *Notifier) Alert(title, body string) {
	if n == nil || len(n.Sinks) == 0 {
		logrus.WithField("title", title).Warn("alert dropped: no channel")
		return
	}
	for _, s := range n.Sinks {
		if _, ok := s.(Completer); ok {
			continue
		}
		if err := s.Show(title, body); err != nil {
			n.logger().WithField("sink", fmt.Sprintf("%T", s)).WithError(err).Warn("alert failed")
		}
	}
}

// CompletionMessage formats the completion title and body for a book.
func CompletionMessage(displayName string) (string, string) {
	if displayName == "" {
		return "AI Book Reader", "Explanation finished"
	}
	return "AI Book Reader", fmt.Sprintf("Explanation of %s finished", displayName)
}

func (n *Notifier) logger() logrus.FieldLogger {
	if n.Log == nil {
		return logrus.StandardLogger()
	}
	return n.Log
}

// Log writes messages to the log. It is always available, so a notifier
// with a Log sink never drops a message silently.
type Log struct {
	Logger logrus.FieldLogger
}

func (l Log) Show(title, body string) error {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithField("title", title).Info(body)
	return nil
}
