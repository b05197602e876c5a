// Package automation drives the chat page: it classifies the composer
// state, injects the page screenshot and prompt, submits and waits for the
// answer to finish.
package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"ai-book-reader/src/page"
	"ai-book-reader/src/selectors"
)

// State is the classified composer state.
type State string

const (
	StateAIWorking   State = "AI_WORKING"
	StateReadyToSend State = "READY_TO_SEND"
	StateVoiceMode   State = "VOICE_MODE"
	StateUnknown     State = "UNKNOWN"
)

// Match describes the element that decided a detection.
type Match struct {
	Role     selectors.Role
	Selector string
	Disabled bool
}

// Found reports whether the match refers to an element.
func (m Match) Found() bool { return m.Selector != "" }

// Detector classifies the page against the registry's chains.
type Detector struct {
	Page     page.Page
	Registry *selectors.Registry
	Log      logrus.FieldLogger
}

// detectionOrder is the fixed priority: a visible stop button means the
// model is answering regardless of what else is on screen.
var detectionOrder = []struct {
	role  selectors.Role
	state State
}{
	{selectors.RoleStop, StateAIWorking},
	{selectors.RoleSend, StateReadyToSend},
	{selectors.RoleVoice, StateVoiceMode},
}

// Detect returns exactly one state per call. It never mutates the page.
// An error means the page could not be observed; no state is implied.
func (d *Detector) Detect(ctx context.Context) (State, Match, error) {
	for _, step := range detectionOrder {
		m, ok, err := d.First(ctx, step.role)
		if err != nil {
			return StateUnknown, Match{}, err
		}
		if ok {
			return step.state, m, nil
		}
	}
	return StateUnknown, Match{}, nil
}

// First walks role's chain and returns the first selector that matches a
// live element. A selector the page rejects counts as no match for that
// selector only; any other query failure is returned.
func (d *Detector) First(ctx context.Context, role selectors.Role) (Match, bool, error) {
	for _, sel := range d.Registry.Resolve(role) {
		if err := ctx.Err(); err != nil {
			return Match{}, false, err
		}
		el, err := d.Page.Query(ctx, sel)
		if errors.Is(err, page.ErrInvalidSelector) {
			d.logger().WithFields(logrus.Fields{"role": role, "selector": sel}).WithError(err).Debug("selector unsupported")
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Match{}, false, ctx.Err()
			}
			return Match{}, false, fmt.Errorf("query %s: %w", role, err)
		}
		if el.Found {
			return Match{Role: role, Selector: sel, Disabled: el.Disabled}, true, nil
		}
	}
	return Match{}, false, nil
}

func (d *Detector) logger() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}
