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
	"errors"
	"fmt"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
	par "github.com/vmware/vmware-go-kvlease/clientlibrary/partition"
)

const (
	// NumMaxRetries is the max times of doing retry
	NumMaxRetries = 10

	opGetCheckpoint    = "get_checkpoint"
	opSetCheckpoint    = "set_checkpoint"
	opDeleteCheckpoint = "delete_checkpoint"
	opListCheckpoints  = "list_checkpoints"
	opGetLease         = "get_lease"
	opSetLease         = "set_lease"
	opDeleteLease      = "delete_lease"
	opListLeases       = "list_leases"
	opFlushCheckpoints = "flush_checkpoints"
	opConnect          = "connect"
)

// ErrNotConnected is returned by store operations attempted before Init or after Close, or when
// no store endpoint is configured.
var ErrNotConnected = errors.New("checkpoint store is not connected")

// Checkpointer persists checkpoints and leases in two namespaces of a key-value store.
// A missing record is reported as a nil value with a nil error.
type Checkpointer interface {
	// Init connects to the store and, if batching is enabled, starts the background flusher.
	// It is a no-op when no store endpoint is configured or a connection is already open.
	Init(context.Context) error

	// IsConnected reports whether a live connection exists.
	IsConnected() bool

	// GetCheckpoint returns the stored checkpoint of a partition.
	GetCheckpoint(context.Context, string) (*par.Checkpoint, error)

	// SetCheckpoint writes through, or buffers the checkpoint when batching is enabled.
	SetCheckpoint(context.Context, *par.Checkpoint) error

	DeleteCheckpoint(context.Context, string) error

	GetAllCheckpoints(context.Context) (map[string]*par.Checkpoint, error)

	// GetLease returns the stored lease of a partition.
	GetLease(context.Context, string) (*par.Lease, error)

	SetLease(context.Context, *par.Lease) error

	DeleteLease(context.Context, string) error

	GetAllLeases(context.Context) (map[string]*par.Lease, error)

	// GetBaseLeases returns ownership snapshots of every stored lease.
	GetBaseLeases(context.Context) ([]par.BaseLease, error)

	// Flush writes buffered checkpoints now.
	Flush(context.Context) error

	// Close stops the flusher, flushes what is buffered and closes the connection.
	// It is idempotent and safe to call on a checkpointer that never connected.
	Close() error
}

// kvStore is the raw string key-value surface a backend provides to the gateway.
// namespace is either the checkpoint or the lease namespace.
type kvStore interface {
	// get returns false when the key does not exist.
	get(ctx context.Context, namespace, key string) (string, bool, error)
	put(ctx context.Context, namespace, key, value string) error
	// putAll writes all values with as few round trips as the backend allows.
	putAll(ctx context.Context, namespace string, values map[string]string) error
	remove(ctx context.Context, namespace, key string) error
	getAll(ctx context.Context, namespace string) (map[string]string, error)
}

// NewCheckpointer returns the backend selected by the configured store type.
func NewCheckpointer(kvConfig *config.KVCheckpointConfiguration) (Checkpointer, error) {
	switch kvConfig.StoreType {
	case config.Redis:
		return NewRedisCheckpoint(kvConfig), nil
	case config.DynamoDB:
		return NewDynamoCheckpoint(kvConfig), nil
	case config.NATS:
		return NewNatsCheckpoint(kvConfig), nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", kvConfig.StoreType)
	}
}
