package configuration

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelOff   LogLevel = "off"
)

var logrusLevels = map[LogLevel]log.Level{
	LogLevelTrace: log.TraceLevel,
	LogLevelDebug: log.DebugLevel,
	LogLevelInfo:  log.InfoLevel,
	LogLevelWarn:  log.WarnLevel,
	LogLevelError: log.ErrorLevel,
}

func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if level == "warning" {
		level = LogLevelWarn
	}
	if _, ok := logrusLevels[level]; !ok && level != LogLevelOff {
		return "", pacterror.Configurationf("unknown log level %q", s)
	}
	return level, nil
}

func (l *LogLevel) UnmarshalText(text []byte) error {
	level, err := ParseLogLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}

func (l LogLevel) String() string {
	return string(l)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitLogging applies the level to the package logger and, when file is set,
// appends log output to it. The returned closer releases the file.
func InitLogging(level LogLevel, file string) (io.Closer, error) {
	if level == LogLevelOff {
		log.SetOutput(io.Discard)
		return nopCloser{}, nil
	}

	l, ok := logrusLevels[level]
	if !ok {
		return nil, pacterror.Configurationf("unknown log level %q", level)
	}
	log.SetLevel(l)

	if file == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, pacterror.IO(err, "opening log file %s", file)
	}
	log.SetOutput(f)
	return f, nil
}
