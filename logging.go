package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/brahman47/breakyourbelljar/config"
)

// newLogger writes JSON in production and human readable text in dev unless
// log.format says otherwise.
func newLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	format := cfg.Log.Format
	if format == "" {
		format = "json"
		if cfg.IsDev() {
			format = "text"
		}
	}
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}
