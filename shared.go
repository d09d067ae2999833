package netdumplings

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Default hub addresses and ports, matching the netdumplings source's
// shared.py constants.
const (
	DefaultHubHost     = "localhost"
	DefaultHubInPort   = 11347
	DefaultHubOutPort  = 11348
	DefaultStatusFreq  = 5 * time.Second
	DefaultPokeInterval = 5 * time.Second

	// SystemStatusChefName is the chef_name carried by hub-synthesized
	// status dumplings.
	SystemStatusChefName = "SystemStatusChef"
)

// Close codes for the application-defined websocket close handshake. Both
// are >= 4000 as required by the RFC 6455 private-use range.
const (
	CloseCancelled = 4101
	CloseEaterFull = 4102
)

var closeCancelledReason = "connection cancelled"
var closeEaterFullReason = "dumpling eater is full"

// logEnv is the environment variable that overrides the default logging
// level.
const logEnv = "NETDUMPLINGS_LOG_LEVEL"

// logger is the subset of *logrus.Logger that Kitchen, Hub and Eater depend
// on, so tests can substitute a fake sink.
type logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var defaultLogger = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	l := &logrus.Logger{
		Out:       os.Stderr,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}

	if lvl, err := logrus.ParseLevel(os.Getenv(logEnv)); err == nil {
		l.Level = lvl
	}

	return l
}

// Logger returns the package-wide default logrus logger. Every Kitchen, Hub,
// Uplink and Eater logs through it; none of their option structs accepts a
// different logger.
func Logger() *logrus.Logger {
	return defaultLogger
}
