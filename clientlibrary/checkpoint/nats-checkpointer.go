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

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
)

// NatsCheckpoint implements the Checkpointer interface using NATS JetStream key-value buckets
// as a backend, one bucket per namespace.
type NatsCheckpoint struct {
	*kvGateway
	conn     *nats.Conn
	ownsConn bool
	js       jetstream.JetStream
	buckets  map[string]jetstream.KeyValue
}

func NewNatsCheckpoint(kvConfig *config.KVCheckpointConfiguration) *NatsCheckpoint {
	checkpointer := &NatsCheckpoint{}
	checkpointer.kvGateway = newKVGateway(kvConfig, checkpointer)
	return checkpointer
}

// WithNatsConn is used to provide an existing NATS connection. The connection is not closed by
// Close.
func (checkpointer *NatsCheckpoint) WithNatsConn(conn *nats.Conn) *NatsCheckpoint {
	checkpointer.conn = conn
	checkpointer.ownsConn = false
	return checkpointer
}

// Init connects to NATS and creates the checkpoint and lease buckets if needed.
func (checkpointer *NatsCheckpoint) Init(ctx context.Context) error {
	return checkpointer.connect(ctx, checkpointer.dial)
}

func (checkpointer *NatsCheckpoint) dial(ctx context.Context) (bool, error) {
	kvConfig := checkpointer.kvConfig
	if checkpointer.conn == nil {
		if strings.TrimSpace(kvConfig.StoreHostname) == "" {
			return false, nil
		}

		url := "nats://" + net.JoinHostPort(kvConfig.StoreHostname, strconv.Itoa(kvConfig.Port))
		checkpointer.log.Infof("Connecting to NATS at %s", url)
		opts := []nats.Option{
			nats.Name(kvConfig.KeyPrefix),
			nats.Timeout(time.Duration(kvConfig.ConnectTimeoutMillis) * time.Millisecond),
		}
		if kvConfig.Password != "" {
			opts = append(opts, nats.Token(kvConfig.Password))
		}
		if kvConfig.UseTLS {
			opts = append(opts, nats.Secure(&tls.Config{
				ServerName: kvConfig.StoreHostname,
				MinVersion: tls.VersionTLS12,
			}))
		}

		conn, err := nats.Connect(url, opts...)
		if err != nil {
			return false, fmt.Errorf("connect to nats: %w", err)
		}
		checkpointer.conn = conn
		checkpointer.ownsConn = true
	}

	js, err := jetstream.New(checkpointer.conn)
	if err != nil {
		checkpointer.closeConn()
		return false, fmt.Errorf("create jetstream context: %w", err)
	}

	buckets := make(map[string]jetstream.KeyValue, 2)
	for _, bucket := range []string{checkpointer.checkpointKey, checkpointer.leaseKey} {
		kv, err := ensureBucket(ctx, js, bucket)
		if err != nil {
			checkpointer.closeConn()
			return false, err
		}
		buckets[bucket] = kv
	}

	checkpointer.js = js
	checkpointer.buckets = buckets
	return true, nil
}

// ensureBucket opens the bucket, creating it first if it does not exist.
func ensureBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err == nil {
		return kv, nil
	}
	if errors.Is(err, jetstream.ErrBucketExists) {
		kv, err = js.KeyValue(ctx, bucket)
		if err == nil {
			return kv, nil
		}
	}
	return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
}

// Close flushes buffered checkpoints and closes the NATS connection.
func (checkpointer *NatsCheckpoint) Close() error {
	return checkpointer.disconnect(func() error {
		checkpointer.closeConn()
		return nil
	})
}

func (checkpointer *NatsCheckpoint) closeConn() {
	checkpointer.js = nil
	checkpointer.buckets = nil
	if checkpointer.conn == nil || !checkpointer.ownsConn {
		return
	}
	checkpointer.conn.Close()
	checkpointer.conn = nil
	checkpointer.ownsConn = false
}

func (checkpointer *NatsCheckpoint) bucket(namespace string) (jetstream.KeyValue, error) {
	kv, ok := checkpointer.buckets[namespace]
	if !ok {
		return nil, ErrNotConnected
	}
	return kv, nil
}

func (checkpointer *NatsCheckpoint) get(ctx context.Context, namespace, key string) (string, bool, error) {
	kv, err := checkpointer.bucket(namespace)
	if err != nil {
		return "", false, err
	}

	entry, err := kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(entry.Value()), true, nil
}

func (checkpointer *NatsCheckpoint) put(ctx context.Context, namespace, key, value string) error {
	kv, err := checkpointer.bucket(namespace)
	if err != nil {
		return err
	}

	_, err = kv.Put(ctx, key, []byte(value))
	return err
}

// putAll publishes every value asynchronously on the bucket subjects and waits for all acks.
func (checkpointer *NatsCheckpoint) putAll(ctx context.Context, namespace string, values map[string]string) error {
	if _, err := checkpointer.bucket(namespace); err != nil {
		return err
	}

	futures := make([]jetstream.PubAckFuture, 0, len(values))
	for key, value := range values {
		future, err := checkpointer.js.PublishAsync("$KV."+namespace+"."+key, []byte(value))
		if err != nil {
			return err
		}
		futures = append(futures, future)
	}

	for _, future := range futures {
		select {
		case <-future.Ok():
		case err := <-future.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (checkpointer *NatsCheckpoint) remove(ctx context.Context, namespace, key string) error {
	kv, err := checkpointer.bucket(namespace)
	if err != nil {
		return err
	}

	err = kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (checkpointer *NatsCheckpoint) getAll(ctx context.Context, namespace string) (map[string]string, error) {
	kv, err := checkpointer.bucket(namespace)
	if err != nil {
		return nil, err
	}

	keys, err := kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		values[key] = string(entry.Value())
	}
	return values, nil
}
