//go:build !windows

package main

import "github.com/sirupsen/logrus"

func enableDPIAwareness(logrus.FieldLogger) {}
