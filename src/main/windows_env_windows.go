//go:build windows

package main

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

// enableDPIAwareness sets per-monitor DPI awareness so screen captures
// match physical pixels on scaled displays.
func enableDPIAwareness(log logrus.FieldLogger) {
	setProcessDpiAwareness := windows.NewLazySystemDLL("Shcore.dll").NewProc("SetProcessDpiAwareness")
	const processPerMonitorDPIAware = 2
	if err := setProcessDpiAwareness.Find(); err == nil {
		ret, _, _ := setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		if ret == 0 {
			log.Debug("per-monitor DPI awareness set")
		} else {
			log.WithField("code", ret).Warn("per-monitor DPI awareness failed")
		}
		return
	}

	setProcessDPIAware := windows.NewLazySystemDLL("user32.dll").NewProc("SetProcessDPIAware")
	if err := setProcessDPIAware.Find(); err != nil {
		log.Warn("no DPI awareness API available")
		return
	}
	if ret, _, _ := setProcessDPIAware.Call(); ret != 0 {
		log.Debug("system DPI awareness set")
	} else {
		log.Warn("system DPI awareness failed")
	}
}
