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
package checkpoint

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
)

// RedisCheckpoint implements the Checkpointer interface using Redis hashes as a backend.
// Checkpoints live in the hash named by the key prefix and leases in the hash named by the key
// prefix plus "_lease".
type RedisCheckpoint struct {
	*kvGateway
	client     redis.UniversalClient
	ownsClient bool
}

func NewRedisCheckpoint(kvConfig *config.KVCheckpointConfiguration) *RedisCheckpoint {
	checkpointer := &RedisCheckpoint{}
	checkpointer.kvGateway = newKVGateway(kvConfig, checkpointer)
	return checkpointer
}

// WithRedisClient is used to provide an already configured Redis client. The client is not
// closed by Close.
func (checkpointer *RedisCheckpoint) WithRedisClient(client redis.UniversalClient) *RedisCheckpoint {
	checkpointer.client = client
	checkpointer.ownsClient = false
	return checkpointer
}

// Init connects to Redis
func (checkpointer *RedisCheckpoint) Init(ctx context.Context) error {
	return checkpointer.connect(ctx, checkpointer.dial)
}

func (checkpointer *RedisCheckpoint) dial(ctx context.Context) (bool, error) {
	kvConfig := checkpointer.kvConfig
	if checkpointer.client == nil {
		if strings.TrimSpace(kvConfig.StoreHostname) == "" {
			return false, nil
		}

		checkpointer.log.Infof("Connecting to Redis at %s:%d db %d", kvConfig.StoreHostname, kvConfig.Port, kvConfig.DatabaseIndex)
		opts := &redis.Options{
			Addr:        net.JoinHostPort(kvConfig.StoreHostname, strconv.Itoa(kvConfig.Port)),
			Password:    kvConfig.Password,
			DB:          kvConfig.DatabaseIndex,
			ClientName:  kvConfig.KeyPrefix,
			DialTimeout: time.Duration(kvConfig.ConnectTimeoutMillis) * time.Millisecond,
		}
		if kvConfig.UseTLS {
			opts.TLSConfig = &tls.Config{
				ServerName: kvConfig.StoreHostname,
				MinVersion: tls.VersionTLS12,
			}
		}
		checkpointer.client = redis.NewClient(opts)
		checkpointer.ownsClient = true
	}

	if err := checkpointer.client.Ping(ctx).Err(); err != nil {
		checkpointer.closeClient()
		return false, fmt.Errorf("connect to redis: %w", err)
	}
	return true, nil
}

// Close flushes buffered checkpoints and closes the Redis client.
func (checkpointer *RedisCheckpoint) Close() error {
	return checkpointer.disconnect(checkpointer.closeClient)
}

func (checkpointer *RedisCheckpoint) closeClient() error {
	if checkpointer.client == nil || !checkpointer.ownsClient {
		return nil
	}
	err := checkpointer.client.Close()
	checkpointer.client = nil
	checkpointer.ownsClient = false
	return err
}

func (checkpointer *RedisCheckpoint) get(ctx context.Context, namespace, key string) (string, bool, error) {
	value, err := checkpointer.client.HGet(ctx, namespace, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (checkpointer *RedisCheckpoint) put(ctx context.Context, namespace, key, value string) error {
	return checkpointer.client.HSet(ctx, namespace, key, value).Err()
}

func (checkpointer *RedisCheckpoint) putAll(ctx context.Context, namespace string, values map[string]string) error {
	_, err := checkpointer.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.HSet(ctx, namespace, key, value)
		}
		return nil
	})
	return err
}

func (checkpointer *RedisCheckpoint) remove(ctx context.Context, namespace, key string) error {
	return checkpointer.client.HDel(ctx, namespace, key).Err()
}

func (checkpointer *RedisCheckpoint) getAll(ctx context.Context, namespace string) (map[string]string, error) {
	return checkpointer.client.HGetAll(ctx, namespace).Result()
}
