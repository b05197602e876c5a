package singleinstance

import (
	"os"
	"strconv"
	"strings"
)

const (
	PortStartEnvVar = "SINGLEINSTANCE_PORT_START"
	PortEndEnvVar   = "SINGLEINSTANCE_PORT_END"

	defaultPortStart = 49560
	defaultPortEnd   = 49580
)

// getPortRange returns the inclusive resident port range from the
// environment, clamped to [1024, 65535]. The resident binds the first port;
// clients scan the whole range.
func getPortRange() (int, int) {
	start := envPort(PortStartEnvVar, defaultPortStart)
	end := envPort(PortEndEnvVar, defaultPortEnd)
	if end < start {
		start, end = end, start
	}
	return max(start, 1024), min(end, 65535)
}

func envPort(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return n
}

// PortRange returns the effective port range, as shown by status.
func PortRange() (int, int) { return getPortRange() }
