// Package klog is the kernel's logging facade. Its call shape — Infof,
// Warningf, Debugf, IsLogging — mirrors gvisor's internal pkg/log as used
// throughout runsc/boot/loader.go and runsc/sandbox/sandbox.go, but since
// that package is unexported to this module, klog is backed directly by
// sirupsen/logrus instead of reimplementing gvisor's own logger.
package klog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level names the severity gate, mirroring gvisor's log.Level so call sites
// translated from loader.go (`log.IsLogging(log.Debug)`) read unchanged.
type Level int

const (
	Warning Level = iota
	Info
	Debug
)

var (
	mu  sync.Mutex
	std = newLogger()
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the minimum severity logged, for boot-time config
// (pkg/bootinfo.Config's log_level).
func SetLevel(lvl Level) {
	mu.Lock()
	defer mu.Unlock()
	switch lvl {
	case Debug:
		std.SetLevel(logrus.DebugLevel)
	case Info:
		std.SetLevel(logrus.InfoLevel)
	default:
		std.SetLevel(logrus.WarnLevel)
	}
}

// IsLogging reports whether lvl would actually be emitted, letting callers
// skip building an expensive message (e.g. a syscall trace line) when it
// would be discarded, the same guard loader.go uses before formatting a
// seccomp program dump.
func IsLogging(lvl Level) bool {
	mu.Lock()
	defer mu.Unlock()
	switch lvl {
	case Debug:
		return std.IsLevelEnabled(logrus.DebugLevel)
	case Info:
		return std.IsLevelEnabled(logrus.InfoLevel)
	default:
		return std.IsLevelEnabled(logrus.WarnLevel)
	}
}

func Infof(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	std.Infof(format, args...)
}

func Warningf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	std.Warnf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	std.Debugf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	std.Errorf(format, args...)
}
