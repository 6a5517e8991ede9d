package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Init builds the process logger. An unknown level falls back to info.
func Init(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	logger = l
	return l
}

func Get() *logrus.Logger {
	once.Do(func() {
		if logger == nil {
			Init("info")
		}
	})
	return logger
}
