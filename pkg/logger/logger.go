// Package logger provides the structured logger shared by the registry services.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger bound to a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New creates a logger for the named component.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	return &Logger{Logger: l, component: component}
}

// NewDefault creates a logger configured from LOG_LEVEL and LOG_FORMAT.
func NewDefault(component string) *Logger {
	return New(component, Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// NewDiscard returns a logger that drops everything. Useful in tests.
func NewDiscard(component string) *Logger {
	return New(component, Config{Output: io.Discard})
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string { return l.component }

// WithField starts an entry tagged with the component and one field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithField(key, value)
}

// WithFields starts an entry tagged with the component and the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithFields(logrus.Fields(fields))
}

// WithError starts an entry tagged with the component and an error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithError(err)
}

// Info logs at info level with the component field.
func (l *Logger) Info(args ...interface{}) {
	l.Logger.WithField("component", l.component).Info(args...)
}

// Warn logs at warn level with the component field.
func (l *Logger) Warn(args ...interface{}) {
	l.Logger.WithField("component", l.component).Warn(args...)
}

// Error logs at error level with the component field.
func (l *Logger) Error(args ...interface{}) {
	l.Logger.WithField("component", l.component).Error(args...)
}

// Debug logs at debug level with the component field.
func (l *Logger) Debug(args ...interface{}) {
	l.Logger.WithField("component", l.component).Debug(args...)
}
