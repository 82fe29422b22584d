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
package config

import (
	"log"

	creds "github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/metrics"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/utils"
	"github.com/vmware/vmware-go-kvlease/logger"
)

// NewKVCheckpointConfig creates a default KVCheckpointConfiguration based on the required fields.
// An empty processorHostname is replaced by a random UUID. An empty storeHostname selects
// disconnected mode.
func NewKVCheckpointConfig(processorHostname, storeHostname, keyPrefix string) *KVCheckpointConfiguration {
	checkIsValueNotEmpty("KeyPrefix", keyPrefix)

	if empty(processorHostname) {
		processorHostname = utils.MustNewUUID()
	}

	// populate the configuration with default values
	return &KVCheckpointConfiguration{
		ProcessorHostname:              processorHostname,
		StoreType:                      DefaultStoreType,
		StoreHostname:                  storeHostname,
		Port:                           DefaultPort,
		DatabaseIndex:                  DefaultDatabaseIndex,
		UseTLS:                         DefaultUseTLS,
		ConnectTimeoutMillis:           DefaultConnectTimeoutMillis,
		LeaseDurationMillis:            DefaultLeaseDurationMillis,
		KeyPrefix:                      keyPrefix,
		BatchCheckpointWrites:          DefaultBatchCheckpointWrites,
		BatchIntervalMillis:            DefaultBatchIntervalMillis,
		InitialCheckpointOffset:        DefaultInitialCheckpointOffset,
		InitialLeaseTableReadCapacity:  DefaultInitialLeaseTableReadCapacity,
		InitialLeaseTableWriteCapacity: DefaultInitialLeaseTableWriteCapacity,
		Logger:                         logger.GetDefaultLogger(),
		MonitoringService:              metrics.NoopMonitoringService{},
		Clock:                          utils.SystemClock{},
	}
}

func (c *KVCheckpointConfiguration) WithStoreType(storeType StoreType) *KVCheckpointConfiguration {
	switch storeType {
	case Redis, DynamoDB, NATS:
	default:
		log.Panicf("Unknown StoreType: %v", storeType)
	}
	c.StoreType = storeType
	return c
}

// WithStoreHostname sets the store host. An empty value selects disconnected mode.
func (c *KVCheckpointConfiguration) WithStoreHostname(hostname string) *KVCheckpointConfiguration {
	c.StoreHostname = hostname
	return c
}

func (c *KVCheckpointConfiguration) WithPort(port int) *KVCheckpointConfiguration {
	checkIsValuePositive("Port", port)
	c.Port = port
	return c
}

func (c *KVCheckpointConfiguration) WithPassword(password string) *KVCheckpointConfiguration {
	c.Password = password
	return c
}

func (c *KVCheckpointConfiguration) WithDatabaseIndex(index int) *KVCheckpointConfiguration {
	checkIsValueNotNegative("DatabaseIndex", index)
	c.DatabaseIndex = index
	return c
}

func (c *KVCheckpointConfiguration) WithTLS(useTLS bool) *KVCheckpointConfiguration {
	c.UseTLS = useTLS
	return c
}

func (c *KVCheckpointConfiguration) WithConnectTimeoutMillis(millis int) *KVCheckpointConfiguration {
	checkIsValuePositive("ConnectTimeoutMillis", millis)
	c.ConnectTimeoutMillis = millis
	return c
}

func (c *KVCheckpointConfiguration) WithLeaseDurationMillis(millis int) *KVCheckpointConfiguration {
	checkIsValuePositive("LeaseDurationMillis", millis)
	c.LeaseDurationMillis = millis
	return c
}

// WithBatchCheckpointWrites enables or disables buffered checkpoint writes.
func (c *KVCheckpointConfiguration) WithBatchCheckpointWrites(batch bool) *KVCheckpointConfiguration {
	c.BatchCheckpointWrites = batch
	return c
}

func (c *KVCheckpointConfiguration) WithBatchIntervalMillis(millis int) *KVCheckpointConfiguration {
	checkIsValuePositive("BatchIntervalMillis", millis)
	c.BatchIntervalMillis = millis
	return c
}

func (c *KVCheckpointConfiguration) WithInitialCheckpointOffset(offset string) *KVCheckpointConfiguration {
	checkIsValueNotEmpty("InitialCheckpointOffset", offset)
	c.InitialCheckpointOffset = offset
	return c
}

func (c *KVCheckpointConfiguration) WithRegionName(regionName string) *KVCheckpointConfiguration {
	checkIsValueNotEmpty("RegionName", regionName)
	c.RegionName = regionName
	return c
}

// WithDynamoDBEndpoint is used to provide an alternative DynamoDB endpoint
func (c *KVCheckpointConfiguration) WithDynamoDBEndpoint(dynamoDBEndpoint string) *KVCheckpointConfiguration {
	c.DynamoDBEndpoint = dynamoDBEndpoint
	return c
}

func (c *KVCheckpointConfiguration) WithDynamoDBCredentials(credentials *creds.Credentials) *KVCheckpointConfiguration {
	c.DynamoDBCredentials = credentials
	return c
}

func (c *KVCheckpointConfiguration) WithInitialLeaseTableCapacity(read, write int) *KVCheckpointConfiguration {
	checkIsValuePositive("InitialLeaseTableReadCapacity", read)
	checkIsValuePositive("InitialLeaseTableWriteCapacity", write)
	c.InitialLeaseTableReadCapacity = read
	c.InitialLeaseTableWriteCapacity = write
	return c
}

// WithLogger sets the logger. Default is logrus.
func (c *KVCheckpointConfiguration) WithLogger(logger logger.Logger) *KVCheckpointConfiguration {
	if logger == nil {
		log.Panic("Logger cannot be nil")
	}
	c.Logger = logger
	return c
}

// WithMonitoringService sets the monitoring service to use to publish metrics.
func (c *KVCheckpointConfiguration) WithMonitoringService(mService metrics.MonitoringService) *KVCheckpointConfiguration {
	// Nil case is handled downstream
	c.MonitoringService = mService
	return c
}

// WithClock replaces the time source used for lease expiry.
func (c *KVCheckpointConfiguration) WithClock(clock utils.Clock) *KVCheckpointConfiguration {
	c.Clock = clock
	return c
}
