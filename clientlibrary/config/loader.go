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
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables read by LoadConfiguration, e.g. KVLEASE_STORE_HOSTNAME.
const EnvPrefix = "KVLEASE"

// Keys understood by LoadConfiguration. They double as command line flag names.
const (
	KeyProcessorHostname       = "processor-hostname"
	KeyStoreType               = "store-type"
	KeyStoreHostname           = "store-hostname"
	KeyPort                    = "port"
	KeyPassword                = "password"
	KeyDatabaseIndex           = "database"
	KeyTLS                     = "tls"
	KeyConnectTimeoutMillis    = "connect-timeout-millis"
	KeyLeaseDurationMillis     = "lease-duration-millis"
	KeyKeyPrefix               = "key-prefix"
	KeyBatchCheckpointWrites   = "batch-checkpoint-writes"
	KeyBatchIntervalMillis     = "batch-interval-millis"
	KeyInitialCheckpointOffset = "initial-checkpoint-offset"
	KeyRegionName              = "region"
	KeyDynamoDBEndpoint        = "dynamodb-endpoint"
)

// NewViper returns a viper instance with defaults registered and environment lookup enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyStoreType, string(DefaultStoreType))
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyDatabaseIndex, DefaultDatabaseIndex)
	v.SetDefault(KeyTLS, DefaultUseTLS)
	v.SetDefault(KeyConnectTimeoutMillis, DefaultConnectTimeoutMillis)
	v.SetDefault(KeyLeaseDurationMillis, DefaultLeaseDurationMillis)
	v.SetDefault(KeyBatchCheckpointWrites, DefaultBatchCheckpointWrites)
	v.SetDefault(KeyBatchIntervalMillis, DefaultBatchIntervalMillis)
	v.SetDefault(KeyInitialCheckpointOffset, DefaultInitialCheckpointOffset)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags registers one flag per configuration key on fs and binds it to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String(KeyProcessorHostname, "", "unique name of this host; random when empty")
	fs.String(KeyStoreType, string(DefaultStoreType), "backend: redis, dynamodb or nats")
	fs.String(KeyStoreHostname, "", "store host; empty runs disconnected")
	fs.Int(KeyPort, DefaultPort, "store port")
	fs.String(KeyPassword, "", "store password")
	fs.Int(KeyDatabaseIndex, DefaultDatabaseIndex, "redis database index")
	fs.Bool(KeyTLS, DefaultUseTLS, "connect using TLS")
	fs.Int(KeyConnectTimeoutMillis, DefaultConnectTimeoutMillis, "connect timeout in milliseconds")
	fs.Int(KeyLeaseDurationMillis, DefaultLeaseDurationMillis, "lease duration in milliseconds")
	fs.String(KeyKeyPrefix, "", "namespace prefix shared by the consumer group")
	fs.Bool(KeyBatchCheckpointWrites, DefaultBatchCheckpointWrites, "buffer checkpoint writes")
	fs.Int(KeyBatchIntervalMillis, DefaultBatchIntervalMillis, "checkpoint flush interval in milliseconds")
	fs.String(KeyInitialCheckpointOffset, DefaultInitialCheckpointOffset, "offset of newly created checkpoints")
	fs.String(KeyRegionName, "", "AWS region of the DynamoDB table")
	fs.String(KeyDynamoDBEndpoint, "", "alternative DynamoDB endpoint")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}

// ReadConfigFile merges the given file into v. An empty path is a no-op.
func ReadConfigFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// LoadConfiguration builds a validated configuration from v.
func LoadConfiguration(v *viper.Viper) (*KVCheckpointConfiguration, error) {
	keyPrefix := strings.TrimSpace(v.GetString(KeyKeyPrefix))
	if keyPrefix == "" {
		return nil, fmt.Errorf("%s is required", KeyKeyPrefix)
	}

	cfg := NewKVCheckpointConfig(v.GetString(KeyProcessorHostname), v.GetString(KeyStoreHostname), keyPrefix)
	cfg.StoreType = StoreType(strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreType))))
	cfg.Port = v.GetInt(KeyPort)
	cfg.Password = v.GetString(KeyPassword)
	cfg.DatabaseIndex = v.GetInt(KeyDatabaseIndex)
	cfg.UseTLS = v.GetBool(KeyTLS)
	cfg.ConnectTimeoutMillis = v.GetInt(KeyConnectTimeoutMillis)
	cfg.LeaseDurationMillis = v.GetInt(KeyLeaseDurationMillis)
	cfg.BatchCheckpointWrites = v.GetBool(KeyBatchCheckpointWrites)
	cfg.BatchIntervalMillis = v.GetInt(KeyBatchIntervalMillis)
	cfg.InitialCheckpointOffset = v.GetString(KeyInitialCheckpointOffset)
	cfg.RegionName = v.GetString(KeyRegionName)
	cfg.DynamoDBEndpoint = v.GetString(KeyDynamoDBEndpoint)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
