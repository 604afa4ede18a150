/*
The logger package wraps zerolog to provide leveled, structured logging with
optional file rotation. Components receive a *Logger and derive sub-loggers
for the pieces they own, so every line carries the component chain that
produced it.
*/
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	Trace LogLevel = iota
	Debug
	Info
	Error
)

func ToLogLevel(level string) LogLevel {
	switch level {
	case "trace":
		return Trace
	case "debug":
		return Debug
	case "info":
		return Info
	case "error":
		return Error
	default:
		return Debug
	}
}

type Config struct {
	// Writers that receive human-readable console output
	ConsoleWriters []io.Writer

	// If set, logs are also written to this file with rotation
	FilePath string

	LogLevel LogLevel
}

type Logger struct {
	logger zerolog.Logger
}

func New(config *Config) (*Logger, error) {
	// Let's us display stack info on errors
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		return fmt.Sprintf("%+v", err)
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer

	if config.FilePath != "" {
		// make our directory if it doesn't exist already
		logDir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	for _, cw := range config.ConsoleWriters {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        cw,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(toZerologLevel(config.LogLevel)).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}, nil
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case Trace:
		return zerolog.TraceLevel
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.DebugLevel
	}
}

func (l *Logger) AddClientVersion(version string) {
	l.logger = l.logger.With().Str("clientVersion", version).Logger()
}

func (l *Logger) GetComponentLogger(component string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", component).Logger(),
	}
}

func (l *Logger) GetConnectionLogger(id string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("connection", id).Logger(),
	}
}

func (l *Logger) Trace(msg string) {
	l.logger.Trace().Msg(msg)
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	l.logger.Trace().Msgf(format, a...)
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.logger.Debug().Msgf(format, a...)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.logger.Info().Msgf(format, a...)
}

func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	l.logger.Warn().Msgf(format, a...)
}

func (l *Logger) Error(err error) {
	l.logger.Error().Stack().Err(err).Send()
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.logger.Error().Stack().Err(fmt.Errorf(format, a...)).Send()
}
