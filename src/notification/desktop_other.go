//go:build !windows

package notification

import (
	"errors"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Desktop posts a system notification through the platform notifier
// (osascript on macOS, notify-send elsewhere).
type Desktop struct{}

func (Desktop) Show(title, body string) error {
	cmd, err := desktopCommand(title, body)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func desktopCommand(title, body string) (*exec.Cmd, error) {
	if runtime.GOOS == "darwin" {
		script := "display notification " + strconv.Quote(body) + " with title " + strconv.Quote(title)
		return exec.Command("osascript", "-e", script), nil
	}
	path, err := exec.LookPath("notify-send")
	if err != nil {
		return nil, errors.New("notify-send not found")
	}
	return exec.Command(path, "--app-name=AI Book Reader", title, body), nil
}

// ShowBlockingError logs a blocking error message on non-Windows platforms.
func ShowBlockingError(title, message string) {
	logrus.Errorf("%s: %s", title, message)
}
