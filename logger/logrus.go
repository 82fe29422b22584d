/*
 * Copyright (c) 2019 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
// Note: The implementation comes from https://www.mountedthoughts.com/golang-logger-interface/
// https://github.com/amitrai48/logger

package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus.FieldLogger. Both *logrus.Logger and *logrus.Entry satisfy it, so
// WithFields returns the same type.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger adapts existing logrus logger to Logger interface.
// The call is responsible for configuring logrus logger appropriately.
func NewLogrusLogger(lLogger logrus.FieldLogger) Logger {
	return &LogrusLogger{
		logger: lLogger,
	}
}

// NewLogrusLoggerWithConfig creates and configs Logger instance backed by
// logrus logger. Console and file are separate sinks, each with its own level and format.
func NewLogrusLoggerWithConfig(config Configuration) Logger {
	NormalizeConfig(&config)

	lLogger := &logrus.Logger{
		Out:       io.Discard,
		Formatter: getFormatter(false),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.PanicLevel,
	}

	if config.EnableConsole {
		addSink(lLogger, os.Stdout, config.ConsoleJSONFormat, config.ConsoleLevel)
	}
	if config.EnableFile {
		addSink(lLogger, NewRotatingFile(config), config.FileJSONFormat, config.FileLevel)
	}

	return &LogrusLogger{
		logger: lLogger,
	}
}

// addSink raises the logger level far enough for the sink to see its entries.
func addSink(lLogger *logrus.Logger, w io.Writer, isJSON bool, level string) {
	l := getLogrusLevel(level)
	if l > lLogger.GetLevel() {
		lLogger.SetLevel(l)
	}
	lLogger.AddHook(&sinkHook{
		writer:    w,
		formatter: getFormatter(isJSON),
		level:     l,
	})
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *LogrusLogger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

func (l *LogrusLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *LogrusLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf(format, args...)
}

func (l *LogrusLogger) Panicf(format string, args ...interface{}) {
	l.logger.Panicf(format, args...)
}

func (l *LogrusLogger) WithFields(fields Fields) Logger {
	return &LogrusLogger{
		logger: l.logger.WithFields(logrus.Fields(fields)),
	}
}

// sinkHook writes entries at or above level to its writer.
type sinkHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	level     logrus.Level
}

func (h *sinkHook) Levels() []logrus.Level {
	return logrus.AllLevels[:h.level+1]
}

func (h *sinkHook) Fire(entry *logrus.Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

func getLogrusLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		// fallback to InfoLevel
		return logrus.InfoLevel
	}
	return l
}

func getFormatter(isJSON bool) logrus.Formatter {
	if isJSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	}
}
