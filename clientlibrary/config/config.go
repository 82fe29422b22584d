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
	"fmt"
	"log"
	"strings"

	creds "github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/metrics"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/utils"
	"github.com/vmware/vmware-go-kvlease/logger"
)

// StoreType selects the key-value store backing checkpoints and leases.
type StoreType string

const (
	// Redis stores both namespaces as Redis hashes.
	Redis StoreType = "redis"
	// DynamoDB stores both namespaces in a single DynamoDB table.
	DynamoDB StoreType = "dynamodb"
	// NATS stores both namespaces as NATS JetStream key-value buckets.
	NATS StoreType = "nats"
)

const (
	// StartOfStream starts at the beginning of the stream: all retained data is read first.
	StartOfStream = "-1"

	// EndOfStream starts at the end of the stream: old data is not read.
	EndOfStream = "@latest"

	// LeaseKeySuffix is appended to the key prefix to form the lease namespace.
	LeaseKeySuffix = "_lease"

	DefaultStoreType = Redis

	// DefaultPort is the default port of the key-value store.
	DefaultPort = 6379

	DefaultDatabaseIndex = 0

	DefaultUseTLS = false

	// DefaultConnectTimeoutMillis bounds establishing the store connection.
	DefaultConnectTimeoutMillis = 10000

	// DefaultLeaseDurationMillis is how long a lease stays owned without renewal. A host that does not
	// renew within this interval loses its partitions to other hosts.
	DefaultLeaseDurationMillis = 30000

	// Checkpoints are written through by default.
	DefaultBatchCheckpointWrites = false

	// DefaultBatchIntervalMillis is the flush period of buffered checkpoints when batching is enabled.
	// Up to one interval of checkpoint progress may be lost on crash.
	DefaultBatchIntervalMillis = 2000

	// DefaultInitialCheckpointOffset is used when seeding a checkpoint for an unseen partition.
	DefaultInitialCheckpointOffset = StartOfStream

	// The DynamoDB table is provisioned with this read capacity.
	DefaultInitialLeaseTableReadCapacity = 10

	// The DynamoDB table is provisioned with this write capacity.
	DefaultInitialLeaseTableWriteCapacity = 10
)

type (
	// KVCheckpointConfiguration configures the checkpoint and lease manager.
	// All hosts of the same consumer group must share KeyPrefix and store settings, and each host
	// process must use a unique ProcessorHostname.
	KVCheckpointConfiguration struct {
		// ProcessorHostname identifies this host in lease ownership comparisons. It must match the
		// host name given to the event processor host.
		ProcessorHostname string

		// StoreType selects the backend.
		StoreType StoreType

		// StoreHostname is the host of the key-value store. When empty the manager runs in
		// disconnected mode and connecting is a no-op.
		StoreHostname string

		Port int

		Password string

		// DatabaseIndex selects the logical Redis database.
		DatabaseIndex int

		UseTLS bool

		ConnectTimeoutMillis int

		// LeaseDurationMillis is the lifetime of an acquired or renewed lease.
		LeaseDurationMillis int

		// KeyPrefix names the checkpoint namespace; the lease namespace is KeyPrefix + LeaseKeySuffix.
		KeyPrefix string

		// BatchCheckpointWrites buffers checkpoint writes in memory and flushes them every
		// BatchIntervalMillis. Only the latest checkpoint of a partition survives between flushes.
		BatchCheckpointWrites bool

		BatchIntervalMillis int

		// InitialCheckpointOffset is either StartOfStream or EndOfStream.
		InitialCheckpointOffset string

		// RegionName is the AWS region of the DynamoDB table.
		RegionName string

		// DynamoDBEndpoint is an optional endpoint URL that overrides the default generated endpoint for a DynamoDB client.
		DynamoDBEndpoint string

		// DynamoDBCredentials is used to access DynamoDB. When nil the default credential chain is used.
		DynamoDBCredentials *creds.Credentials

		// Read capacity to provision when creating the lease table (dynamoDB).
		InitialLeaseTableReadCapacity int

		// Write capacity to provision when creating the lease table.
		InitialLeaseTableWriteCapacity int

		// Logger used to log message.
		Logger logger.Logger

		// MonitoringService publishes lease and checkpoint metrics.
		MonitoringService metrics.MonitoringService

		// Clock is the time source for lease expiry.
		Clock utils.Clock
	}
)

// LeaseKey returns the name of the lease namespace.
func (c *KVCheckpointConfiguration) LeaseKey() string {
	return c.KeyPrefix + LeaseKeySuffix
}

// Validate reports the first invalid setting.
func (c *KVCheckpointConfiguration) Validate() error {
	if empty(c.ProcessorHostname) {
		return fmt.Errorf("non-empty value expected for ProcessorHostname")
	}
	if strings.Contains(c.ProcessorHostname, ",") {
		return fmt.Errorf("ProcessorHostname %q must not contain ','", c.ProcessorHostname)
	}
	if empty(c.KeyPrefix) {
		return fmt.Errorf("non-empty value expected for KeyPrefix")
	}
	switch c.StoreType {
	case Redis, DynamoDB, NATS:
	default:
		return fmt.Errorf("unknown StoreType %q", c.StoreType)
	}
	if c.Port <= 0 {
		return fmt.Errorf("positive value expected for Port, actual: %d", c.Port)
	}
	if c.DatabaseIndex < 0 {
		return fmt.Errorf("non-negative value expected for DatabaseIndex, actual: %d", c.DatabaseIndex)
	}
	if c.ConnectTimeoutMillis <= 0 {
		return fmt.Errorf("positive value expected for ConnectTimeoutMillis, actual: %d", c.ConnectTimeoutMillis)
	}
	if c.LeaseDurationMillis <= 0 {
		return fmt.Errorf("positive value expected for LeaseDurationMillis, actual: %d", c.LeaseDurationMillis)
	}
	if c.BatchCheckpointWrites && c.BatchIntervalMillis <= 0 {
		return fmt.Errorf("positive value expected for BatchIntervalMillis, actual: %d", c.BatchIntervalMillis)
	}
	if strings.Contains(c.InitialCheckpointOffset, ",") {
		return fmt.Errorf("InitialCheckpointOffset %q must not contain ','", c.InitialCheckpointOffset)
	}
	return nil
}

func empty(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}

// checkIsValueNotEmpty makes sure the value is not empty.
func checkIsValueNotEmpty(key string, value string) {
	if empty(value) {
		// There is no point to continue for incorrect configuration. Fail fast!
		log.Panicf("Non-empty value expected for %v, actual: %v", key, value)
	}
}

// checkIsValuePositive makes sure the value is possitive.
func checkIsValuePositive(key string, value int) {
	if value <= 0 {
		// There is no point to continue for incorrect configuration. Fail fast!
		log.Panicf("Positive value expected for %v, actual: %v", key, value)
	}
}

// checkIsValueNotNegative makes sure the value is zero or more.
func checkIsValueNotNegative(key string, value int) {
	if value < 0 {
		log.Panicf("Non-negative value expected for %v, actual: %v", key, value)
	}
}
