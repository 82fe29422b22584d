/*
 * Copyright (c) 2018 VMware, Inc.
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
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/matryer/try"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	chk "github.com/vmware/vmware-go-kvlease/clientlibrary/checkpoint"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/manager"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/metrics"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/metrics/prometheus"
	"github.com/vmware/vmware-go-kvlease/logger"
	"github.com/vmware/vmware-go-kvlease/logger/zap"
	"github.com/vmware/vmware-go-kvlease/logger/zerolog"
)

const (
	flagConfig        = "config"
	flagLogLevel      = "log-level"
	flagLogFormat     = "log-format"
	flagLogJSON       = "log-json"
	flagLogFile       = "log-file"
	flagMetricsListen = "metrics-listen"
	flagRetries       = "connect-retries"

	defaultConnectRetries = 5
)

// app carries what every subcommand needs. The manager is created lazily by connect.
type app struct {
	v        *viper.Viper
	log      logger.Logger
	mService metrics.MonitoringService
	kvConfig *config.KVCheckpointConfiguration
	mgr      *manager.CheckpointLeaseManager
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "kvlease",
		Short: "Inspect and manipulate partition leases and checkpoints",
		Long: `kvlease talks to the key-value store shared by a consumer group.
It seeds, lists, claims and removes the per-partition leases and checkpoints
that the group's hosts coordinate through.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown()
		},
	}

	pf := root.PersistentFlags()
	pf.String(flagConfig, "", "configuration file (yaml, json or toml)")
	pf.String(flagLogLevel, logger.Info, "log level: debug, info, warn, error")
	pf.String(flagLogFormat, "logrus", "log backend: logrus, zap or zerolog")
	pf.Bool(flagLogJSON, false, "log in JSON")
	pf.String(flagLogFile, "", "also log to this file, rotated")
	pf.String(flagMetricsListen, "", "serve prometheus metrics on this address, e.g. :8080")
	pf.Int(flagRetries, defaultConnectRetries, "attempts when connecting to the store")
	if err := config.BindFlags(a.v, pf); err != nil {
		panic(err)
	}

	root.AddCommand(
		newBootstrapCmd(a),
		newLeasesCmd(a),
		newCheckpointsCmd(a),
		newAcquireCmd(a),
		newRenewCmd(a),
		newCheckpointCmd(a),
		newTeardownCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.ReadConfigFile(a.v, a.v.GetString(flagConfig)); err != nil {
		return err
	}

	a.log = newLogger(a.v)

	kvConfig, err := config.LoadConfiguration(a.v)
	if err != nil {
		return err
	}
	kvConfig.WithLogger(a.log)
	a.kvConfig = kvConfig

	if listen := strings.TrimSpace(a.v.GetString(flagMetricsListen)); listen != "" {
		a.mService = prometheus.NewMonitoringService(listen, a.log)
		kvConfig.WithMonitoringService(a.mService)
	}

	mgr, err := manager.NewCheckpointLeaseManager(kvConfig)
	if err != nil {
		return err
	}
	a.mgr = mgr

	if a.mService != nil {
		if err := a.mService.Start(); err != nil {
			return fmt.Errorf("failed to start monitoring service: %w", err)
		}
	}
	return nil
}

func (a *app) shutdown() error {
	if a.mService != nil {
		a.mService.Shutdown()
	}
	if a.mgr == nil {
		return nil
	}
	return a.mgr.Checkpointer().Close()
}

// connect opens the store, retrying connection failures with exponential backoff. A store
// configured without a hostname runs disconnected and is reported as an error here.
func (a *app) connect(ctx context.Context) error {
	retries := a.v.GetInt(flagRetries)
	err := try.Do(func(attempt int) (bool, error) {
		err := a.mgr.CreateLeaseStoreIfNotExists(ctx)
		if err != nil && attempt < retries && ctx.Err() == nil {
			a.log.Warnf("Connect attempt %d failed: %+v", attempt, err)
			time.Sleep(time.Duration(math.Exp2(float64(attempt))*100) * time.Millisecond)
			return true, err
		}
		return false, err
	})
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}

	if ok, _ := a.mgr.LeaseStoreExists(ctx); !ok {
		return fmt.Errorf("store hostname not configured: %w", chk.ErrNotConnected)
	}
	return nil
}

func newLogger(v *viper.Viper) logger.Logger {
	level := strings.ToLower(v.GetString(flagLogLevel))
	logConfig := logger.Configuration{
		EnableConsole:     true,
		ConsoleJSONFormat: v.GetBool(flagLogJSON),
		ConsoleLevel:      level,
	}
	if file := v.GetString(flagLogFile); file != "" {
		logConfig.EnableFile = true
		logConfig.FileJSONFormat = true
		logConfig.FileLevel = level
		logConfig.Filename = file
	}

	switch strings.ToLower(v.GetString(flagLogFormat)) {
	case "zap":
		return zap.NewZapLoggerWithConfig(logConfig)
	case "zerolog":
		return zerolog.NewZerologLoggerWithConfig(logConfig)
	default:
		return logger.NewLogrusLoggerWithConfig(logConfig)
	}
}

// splitPartitions accepts comma separated and repeated values.
func splitPartitions(values []string) ([]string, error) {
	var ids []string
	for _, value := range values {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no partitions given")
	}
	return ids, nil
}
