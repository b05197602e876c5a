//go:build windows

package notification

import (
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

const (
	mbOK              = 0x00000000
	mbIconInformation = 0x00000040
	mbIconError       = 0x00000010
	mbTopMost         = 0x00040000
	mbSetForeground   = 0x00010000
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procMessageBoxW = user32.NewProc("MessageBoxW")
)

// Desktop shows a top-most message box. The box is modal to its own
// goroutine only, so Show returns immediately.
type Desktop struct{}

func (Desktop) Show(title, body string) error {
	if err := procMessageBoxW.Find(); err != nil {
		return err
	}
	go func() {
		if _, err := messageBox(title, body, mbIconInformation); err != nil {
			logrus.WithError(err).Warn("message box failed")
		}
	}()
	return nil
}

// ShowBlockingError displays an error dialog and waits for it to close.
func ShowBlockingError(title, message string) {
	if _, err := messageBox(title, message, mbIconError); err != nil {
		logrus.WithError(err).Errorf("%s: %s", title, message)
	}
}

func messageBox(title, body string, icon uintptr) (uintptr, error) {
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}
	bodyPtr, err := windows.UTF16PtrFromString(body)
	if err != nil {
		return 0, err
	}
	ret, _, _ := procMessageBoxW.Call(
		0,
		uintptr(unsafe.Pointer(bodyPtr)),
		uintptr(unsafe.Pointer(titlePtr)),
		mbOK|icon|mbTopMost|mbSetForeground,
	)
	return ret, nil
}
