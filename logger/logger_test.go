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

package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/vmware-go-kvlease/logger"
)

func TestLogrusLoggerWithConfig(t *testing.T) {
	config := logger.Configuration{
		EnableConsole:     true,
		ConsoleLevel:      logger.Debug,
		ConsoleJSONFormat: false,
		EnableFile:        true,
		FileLevel:         logger.Info,
		FileJSONFormat:    true,
		Filename:          filepath.Join(t.TempDir(), "kvlease.log"),
	}

	log := logger.NewLogrusLoggerWithConfig(config)

	contextLogger := log.WithFields(logger.Fields{"partition": "0"})
	contextLogger.Debugf("Starting with logrus")
	contextLogger.Infof("Logrus is awesome")
}

func TestLogrusLogger(t *testing.T) {
	// adapts to Logger interface from *logrus.Logger
	log := logger.NewLogrusLogger(logrus.StandardLogger())

	contextLogger := log.WithFields(logger.Fields{"partition": "0"})
	contextLogger.Debugf("Starting with logrus")
	contextLogger.Infof("Logrus is awesome")
}

func TestLogrusLoggerWithFieldsAtInit(t *testing.T) {
	// adapts to Logger interface from *logrus.Entry
	fieldLogger := logrus.StandardLogger().WithField("host", "host-a")
	log := logger.NewLogrusLogger(fieldLogger)

	contextLogger := log.WithFields(logger.Fields{"partition": "1"})
	contextLogger.Debugf("Starting with logrus")
	contextLogger.Infof("Structured logging is awesome")
}

func TestLogrusPanicf(t *testing.T) {
	log := logger.NewDiscardLogger()
	assert.Panics(t, func() { log.Panicf("boom %d", 1) })
	assert.Panics(t, func() { log.WithFields(logger.Fields{"k": "v"}).Panicf("boom") })
}

func TestDefaultLogger(t *testing.T) {
	assert.NotNil(t, logger.GetDefaultLogger())
	assert.Same(t, logger.GetDefaultLogger(), logger.GetDefaultLogger())
}

func TestNormalizeConfig(t *testing.T) {
	config := logger.Configuration{MaxBackups: -3}
	logger.NormalizeConfig(&config)
	assert.Equal(t, 100, config.MaxSizeMB)
	assert.Equal(t, 7, config.MaxAgeDays)
	assert.Equal(t, 0, config.MaxBackups)
}

func TestLogrusFileSinkLevel(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "kvlease.log")
	log := logger.NewLogrusLoggerWithConfig(logger.Configuration{
		EnableFile:     true,
		FileLevel:      logger.Warn,
		FileJSONFormat: true,
		Filename:       filename,
	})

	log.Infof("lease renewed")
	log.WithFields(logger.Fields{"partition": "3"}).Warnf("lease lost")

	b, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "lease renewed")
	assert.Contains(t, string(b), `"msg":"lease lost"`)
	assert.Contains(t, string(b), `"partition":"3"`)
}
