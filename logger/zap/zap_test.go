package zap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uzap "go.uber.org/zap"

	"github.com/vmware/vmware-go-kvlease/logger"
	"github.com/vmware/vmware-go-kvlease/logger/zap"
)

func TestZapLoggerWithConfig(t *testing.T) {
	config := logger.Configuration{
		EnableConsole:     true,
		ConsoleLevel:      logger.Debug,
		ConsoleJSONFormat: true,
		EnableFile:        false,
		FileLevel:         logger.Info,
		FileJSONFormat:    true,
	}

	log := zap.NewZapLoggerWithConfig(config)

	contextLogger := log.WithFields(logger.Fields{"partition": "0"})
	contextLogger.Debugf("acquiring lease for partition %s", "0")
	contextLogger.Infof("lease acquired")
}

func TestZapLogger(t *testing.T) {
	zapLogger, err := uzap.NewProduction()
	assert.Nil(t, err)

	log := zap.NewZapLogger(zapLogger.Sugar())

	contextLogger := log.WithFields(logger.Fields{"partition": "0", "epoch": 3})
	contextLogger.Debugf("renewing lease")
	contextLogger.Infof("lease renewed")
}

func TestZapFileSinkLevel(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "kvlease-zap.log")
	log := zap.NewZapLoggerWithConfig(logger.Configuration{
		EnableFile:     true,
		FileLevel:      logger.Error,
		FileJSONFormat: true,
		Filename:       filename,
	})

	log.Warnf("flush slow")
	log.WithFields(logger.Fields{"partition": "2"}).Errorf("flush failed")
	require.NoError(t, log.(*zap.ZapLogger).Sync())

	b, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "flush slow")
	assert.Contains(t, string(b), "flush failed")
	assert.Contains(t, string(b), `"partition":"2"`)
}
