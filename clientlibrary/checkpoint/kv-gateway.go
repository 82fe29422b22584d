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
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/metrics"
	par "github.com/vmware/vmware-go-kvlease/clientlibrary/partition"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/utils"
	"github.com/vmware/vmware-go-kvlease/logger"
)

// kvGateway implements Checkpointer on top of a kvStore. Backends embed it and supply the
// connection lifecycle.
type kvGateway struct {
	log           logger.Logger
	mService      metrics.MonitoringService
	clock         utils.Clock
	kvConfig      *config.KVCheckpointConfiguration
	store         kvStore
	checkpointKey string
	leaseKey      string

	// lifecycle serializes connect and disconnect
	lifecycle sync.Mutex
	connected *atomic.Bool
	flusher   *flusher

	// flushMu keeps flushes ordered so an older drain never overwrites a newer one
	flushMu sync.Mutex
	buffer  *checkpointBuffer
}

func newKVGateway(kvConfig *config.KVCheckpointConfiguration, store kvStore) *kvGateway {
	mService := kvConfig.MonitoringService
	if mService == nil {
		mService = metrics.NoopMonitoringService{}
	}
	clock := kvConfig.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}
	log := kvConfig.Logger
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &kvGateway{
		log:           log,
		mService:      mService,
		clock:         clock,
		kvConfig:      kvConfig,
		store:         store,
		checkpointKey: kvConfig.KeyPrefix,
		leaseKey:      kvConfig.LeaseKey(),
		connected:     atomic.NewBool(false),
		buffer:        newCheckpointBuffer(),
	}
}

// connect runs dial unless already connected. dial reports false when there is no endpoint to
// connect to, which leaves the gateway in disconnected mode.
func (g *kvGateway) connect(ctx context.Context, dial func(context.Context) (bool, error)) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if g.connected.Load() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.kvConfig.ConnectTimeoutMillis)*time.Millisecond)
	defer cancel()

	ok, err := dial(ctx)
	if err != nil {
		g.mService.IncrStoreErrors(opConnect)
		return err
	}
	if !ok {
		g.log.Infof("No store endpoint configured for %s, running disconnected", g.checkpointKey)
		return nil
	}

	g.connected.Store(true)
	if g.kvConfig.BatchCheckpointWrites {
		interval := time.Duration(g.kvConfig.BatchIntervalMillis) * time.Millisecond
		g.log.Debugf("Batching checkpoint writes every %s", interval)
		g.flusher = startFlusher(interval, g.Flush)
	}
	return nil
}

// disconnect stops the flusher, runs a final flush and then closeFn. It does nothing when the
// gateway is not connected.
func (g *kvGateway) disconnect(closeFn func() error) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if !g.connected.Load() {
		return nil
	}

	if g.flusher != nil {
		g.flusher.Stop()
		g.flusher = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(g.kvConfig.ConnectTimeoutMillis)*time.Millisecond)
	defer cancel()

	err := g.Flush(ctx)
	if pending := g.buffer.size(); pending > 0 {
		g.log.Warnf("Dropping %d buffered checkpoints for %s on close", pending, g.checkpointKey)
		g.buffer.drain()
	}

	g.connected.Store(false)
	return multierr.Append(err, closeFn())
}

func (g *kvGateway) IsConnected() bool {
	return g.connected.Load()
}

func (g *kvGateway) GetCheckpoint(ctx context.Context, partitionID string) (*par.Checkpoint, error) {
	if !g.connected.Load() {
		return nil, ErrNotConnected
	}

	value, ok, err := g.store.get(ctx, g.checkpointKey, partitionID)
	if err != nil {
		g.mService.IncrStoreErrors(opGetCheckpoint)
		return nil, fmt.Errorf("get checkpoint %s: %w", partitionID, err)
	}
	if !ok {
		return nil, nil
	}
	return par.DecodeCheckpoint(partitionID, value)
}

func (g *kvGateway) SetCheckpoint(ctx context.Context, checkpoint *par.Checkpoint) error {
	if !g.connected.Load() {
		return ErrNotConnected
	}

	value, err := par.EncodeCheckpoint(checkpoint)
	if err != nil {
		return err
	}

	if g.kvConfig.BatchCheckpointWrites {
		g.buffer.put(checkpoint.PartitionID, value)
		g.mService.CheckpointWritten(checkpoint.PartitionID)
		return nil
	}

	if err := g.store.put(ctx, g.checkpointKey, checkpoint.PartitionID, value); err != nil {
		g.mService.IncrStoreErrors(opSetCheckpoint)
		return fmt.Errorf("set checkpoint %s: %w", checkpoint.PartitionID, err)
	}
	g.mService.CheckpointWritten(checkpoint.PartitionID)
	return nil
}

// Flush writes every buffered checkpoint in one batch. On failure the values are kept for the
// next flush unless a newer value was buffered in the meantime.
func (g *kvGateway) Flush(ctx context.Context) error {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	if !g.connected.Load() {
		return ErrNotConnected
	}

	drained := g.buffer.drain()
	if len(drained) == 0 {
		return nil
	}

	g.log.Debugf("Writing %d checkpoints to %s", len(drained), g.checkpointKey)
	start := time.Now()
	if err := g.store.putAll(ctx, g.checkpointKey, drained); err != nil {
		g.buffer.requeue(drained)
		g.mService.IncrStoreErrors(opFlushCheckpoints)
		g.log.Errorf("Error writing %d checkpoints to %s: %+v", len(drained), g.checkpointKey, err)
		return fmt.Errorf("flush checkpoints: %w", err)
	}
	g.mService.RecordFlushTime(len(drained), float64(time.Since(start).Milliseconds()))
	return nil
}

func (g *kvGateway) DeleteCheckpoint(ctx context.Context, partitionID string) error {
	if !g.connected.Load() {
		return ErrNotConnected
	}

	if err := g.store.remove(ctx, g.checkpointKey, partitionID); err != nil {
		g.mService.IncrStoreErrors(opDeleteCheckpoint)
		return fmt.Errorf("delete checkpoint %s: %w", partitionID, err)
	}
	return nil
}

func (g *kvGateway) GetAllCheckpoints(ctx context.Context) (map[string]*par.Checkpoint, error) {
	if !g.connected.Load() {
		return nil, ErrNotConnected
	}

	values, err := g.store.getAll(ctx, g.checkpointKey)
	if err != nil {
		g.mService.IncrStoreErrors(opListCheckpoints)
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	checkpoints := make(map[string]*par.Checkpoint, len(values))
	for partitionID, value := range values {
		checkpoint, err := par.DecodeCheckpoint(partitionID, value)
		if err != nil {
			return nil, err
		}
		checkpoints[partitionID] = checkpoint
	}
	return checkpoints, nil
}

func (g *kvGateway) GetLease(ctx context.Context, partitionID string) (*par.Lease, error) {
	if !g.connected.Load() {
		return nil, ErrNotConnected
	}

	value, ok, err := g.store.get(ctx, g.leaseKey, partitionID)
	if err != nil {
		g.mService.IncrStoreErrors(opGetLease)
		return nil, fmt.Errorf("get lease %s: %w", partitionID, err)
	}
	if !ok {
		return nil, nil
	}
	return par.DecodeLease(partitionID, value, g.clock.Now())
}

func (g *kvGateway) SetLease(ctx context.Context, lease *par.Lease) error {
	if !g.connected.Load() {
		return ErrNotConnected
	}

	value, err := par.EncodeLease(lease)
	if err != nil {
		return err
	}
	if err := g.store.put(ctx, g.leaseKey, lease.PartitionID, value); err != nil {
		g.mService.IncrStoreErrors(opSetLease)
		return fmt.Errorf("set lease %s: %w", lease.PartitionID, err)
	}
	return nil
}

func (g *kvGateway) DeleteLease(ctx context.Context, partitionID string) error {
	if !g.connected.Load() {
		return ErrNotConnected
	}

	if err := g.store.remove(ctx, g.leaseKey, partitionID); err != nil {
		g.mService.IncrStoreErrors(opDeleteLease)
		return fmt.Errorf("delete lease %s: %w", partitionID, err)
	}
	return nil
}

func (g *kvGateway) GetAllLeases(ctx context.Context) (map[string]*par.Lease, error) {
	if !g.connected.Load() {
		return nil, ErrNotConnected
	}

	values, err := g.store.getAll(ctx, g.leaseKey)
	if err != nil {
		g.mService.IncrStoreErrors(opListLeases)
		return nil, fmt.Errorf("list leases: %w", err)
	}

	now := g.clock.Now()
	leases := make(map[string]*par.Lease, len(values))
	for partitionID, value := range values {
		lease, err := par.DecodeLease(partitionID, value, now)
		if err != nil {
			return nil, err
		}
		leases[partitionID] = lease
	}
	return leases, nil
}

func (g *kvGateway) GetBaseLeases(ctx context.Context) ([]par.BaseLease, error) {
	leases, err := g.GetAllLeases(ctx)
	if err != nil {
		return nil, err
	}

	baseLeases := make([]par.BaseLease, 0, len(leases))
	for _, lease := range leases {
		baseLeases = append(baseLeases, lease)
	}
	sort.Slice(baseLeases, func(i, j int) bool {
		return baseLeases[i].GetPartitionID() < baseLeases[j].GetPartitionID()
	})
	return baseLeases, nil
}
