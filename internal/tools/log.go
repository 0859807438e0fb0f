package tools

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the shared service logger. Everything logged lands in
// lux-meter.log as well as stdout.
var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	// JSON output, so the log file can be parsed downstream
	Logger.Formatter = &logrus.JSONFormatter{}

	out := io.Writer(os.Stdout)
	logFile, err := os.OpenFile("lux-meter.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		Logger.WithError(err).Error("failed to open log file, logging to stdout only")
	} else {
		out = io.MultiWriter(logFile, os.Stdout)
	}
	Logger.SetOutput(out)

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		Logger.SetLevel(logrus.DebugLevel)
	case "info":
		Logger.SetLevel(logrus.InfoLevel)
	case "error":
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}
}
