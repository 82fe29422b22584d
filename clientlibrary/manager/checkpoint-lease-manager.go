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
// Package manager implements the partition lease protocol and checkpoint bookkeeping on top of
// a checkpoint.Checkpointer.
//
// There is no compare-and-swap in the protocol. Every operation reads the stored lease, applies
// the ownership rules and writes back, so two hosts may briefly both believe they own a
// partition. The host that lost the race fails its next renewal.
package manager

import (
	"context"
	"fmt"
	"time"

	chk "github.com/vmware/vmware-go-kvlease/clientlibrary/checkpoint"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/interfaces"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/metrics"
	par "github.com/vmware/vmware-go-kvlease/clientlibrary/partition"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/utils"
	"github.com/vmware/vmware-go-kvlease/logger"
)

var (
	_ interfaces.CheckpointManager = (*CheckpointLeaseManager)(nil)
	_ interfaces.LeaseManager      = (*CheckpointLeaseManager)(nil)
)

// CheckpointLeaseManager implements CheckpointManager and LeaseManager. It keeps no lease or
// checkpoint state of its own: every call reads the store afresh.
type CheckpointLeaseManager struct {
	kvConfig     *config.KVCheckpointConfiguration
	hostname     string
	log          logger.Logger
	mService     metrics.MonitoringService
	clock        utils.Clock
	checkpointer chk.Checkpointer
}

// NewCheckpointLeaseManager validates the configuration and creates the manager with the
// checkpointer matching the configured store type. Nothing is connected until one of the
// Create...StoreIfNotExists calls.
func NewCheckpointLeaseManager(kvConfig *config.KVCheckpointConfiguration) (*CheckpointLeaseManager, error) {
	if kvConfig.Logger == nil {
		kvConfig.Logger = logger.GetDefaultLogger()
	}
	if kvConfig.MonitoringService == nil {
		// default to no-op monitoring service
		kvConfig.MonitoringService = metrics.NoopMonitoringService{}
	}
	if kvConfig.Clock == nil {
		kvConfig.Clock = utils.SystemClock{}
	}
	if err := kvConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	checkpointer, err := chk.NewCheckpointer(kvConfig)
	if err != nil {
		return nil, err
	}

	if err := kvConfig.MonitoringService.Init(kvConfig.KeyPrefix, string(kvConfig.StoreType), kvConfig.ProcessorHostname); err != nil {
		return nil, fmt.Errorf("failed to initialize monitoring service: %w", err)
	}

	return &CheckpointLeaseManager{
		kvConfig:     kvConfig,
		hostname:     kvConfig.ProcessorHostname,
		log:          kvConfig.Logger,
		mService:     kvConfig.MonitoringService,
		clock:        kvConfig.Clock,
		checkpointer: checkpointer,
	}, nil
}

// WithCheckpointer replaces the store backend. Used to provide an already configured client
// or a test double.
func (m *CheckpointLeaseManager) WithCheckpointer(checkpointer chk.Checkpointer) *CheckpointLeaseManager {
	m.checkpointer = checkpointer
	return m
}

// Checkpointer returns the store backend.
func (m *CheckpointLeaseManager) Checkpointer() chk.Checkpointer {
	return m.checkpointer
}

func (m *CheckpointLeaseManager) CheckpointStoreExists(ctx context.Context) (bool, error) {
	return m.checkpointer.IsConnected(), nil
}

func (m *CheckpointLeaseManager) CreateCheckpointStoreIfNotExists(ctx context.Context) error {
	return m.connect(ctx)
}

func (m *CheckpointLeaseManager) DeleteCheckpointStore(ctx context.Context) error {
	return m.checkpointer.Close()
}

func (m *CheckpointLeaseManager) GetCheckpoint(ctx context.Context, partitionID string) (*par.Checkpoint, error) {
	return m.checkpointer.GetCheckpoint(ctx, partitionID)
}

// GetAllCheckpoints returns every stored checkpoint keyed by partition.
func (m *CheckpointLeaseManager) GetAllCheckpoints(ctx context.Context) (map[string]*par.Checkpoint, error) {
	return m.checkpointer.GetAllCheckpoints(ctx)
}

// CreateAllCheckpointsIfNotExists seeds missing checkpoints at the configured initial offset
// with sequence number 0. Existing checkpoints are not touched.
func (m *CheckpointLeaseManager) CreateAllCheckpointsIfNotExists(ctx context.Context, partitionIDs []string) error {
	checkpoints, err := m.checkpointer.GetAllCheckpoints(ctx)
	if err != nil {
		return err
	}

	for _, id := range partitionIDs {
		if _, ok := checkpoints[id]; ok {
			continue
		}

		m.log.Debugf("Creating checkpoint for partition %s", id)
		checkpoint := par.NewCheckpoint(id, m.kvConfig.InitialCheckpointOffset, 0)
		if err := m.checkpointer.SetCheckpoint(ctx, checkpoint); err != nil {
			return err
		}
		checkpoints[id] = checkpoint
	}
	return nil
}

// UpdateCheckpoint writes the checkpoint. The lease is not consulted.
func (m *CheckpointLeaseManager) UpdateCheckpoint(ctx context.Context, lease par.BaseLease, checkpoint *par.Checkpoint) error {
	if checkpoint == nil {
		return fmt.Errorf("nil checkpoint")
	}
	return m.checkpointer.SetCheckpoint(ctx, checkpoint)
}

func (m *CheckpointLeaseManager) DeleteCheckpoint(ctx context.Context, partitionID string) error {
	return m.checkpointer.DeleteCheckpoint(ctx, partitionID)
}

func (m *CheckpointLeaseManager) GetLeaseDurationMillis() int {
	return m.kvConfig.LeaseDurationMillis
}

func (m *CheckpointLeaseManager) LeaseStoreExists(ctx context.Context) (bool, error) {
	return m.checkpointer.IsConnected(), nil
}

func (m *CheckpointLeaseManager) CreateLeaseStoreIfNotExists(ctx context.Context) error {
	return m.connect(ctx)
}

func (m *CheckpointLeaseManager) DeleteLeaseStore(ctx context.Context) error {
	return m.checkpointer.Close()
}

func (m *CheckpointLeaseManager) GetLease(ctx context.Context, partitionID string) (*par.Lease, error) {
	return m.checkpointer.GetLease(ctx, partitionID)
}

func (m *CheckpointLeaseManager) GetAllLeases(ctx context.Context) ([]par.BaseLease, error) {
	return m.checkpointer.GetBaseLeases(ctx)
}

// CreateAllLeasesIfNotExists seeds missing leases with no owner, epoch 0 and expiry 0.
// Existing leases are not touched.
func (m *CheckpointLeaseManager) CreateAllLeasesIfNotExists(ctx context.Context, partitionIDs []string) error {
	leases, err := m.checkpointer.GetAllLeases(ctx)
	if err != nil {
		return err
	}

	for _, id := range partitionIDs {
		if _, ok := leases[id]; ok {
			continue
		}

		m.log.Debugf("Creating lease for partition %s", id)
		lease := par.NewLease(id, 0, 0)
		if err := m.checkpointer.SetLease(ctx, lease); err != nil {
			return err
		}
		leases[id] = lease
	}
	return nil
}

// DeleteLease deletes the stored lease unless another host holds it unexpired, in which case
// nothing happens.
func (m *CheckpointLeaseManager) DeleteLease(ctx context.Context, baseLease par.BaseLease) error {
	lease, err := AsLease(baseLease)
	if err != nil {
		return err
	}

	stored, err := m.checkpointer.GetLease(ctx, lease.PartitionID)
	if err != nil {
		return err
	}
	if m.isStolen(stored, m.clock.Now()) {
		m.log.Debugf("Lease stolen. Skipping delete for partition %s", lease.PartitionID)
		return nil
	}

	return m.checkpointer.DeleteLease(ctx, lease.PartitionID)
}

// AcquireLease claims the lease for this host. It returns false without writing when this host
// already holds the stored lease unexpired. The epoch of the given lease is incremented when
// the stored lease was not held by this host.
func (m *CheckpointLeaseManager) AcquireLease(ctx context.Context, baseLease par.BaseLease) (bool, error) {
	lease, err := AsLease(baseLease)
	if err != nil {
		return false, err
	}

	m.log.Debugf("Acquiring lease for partition %s", lease.PartitionID)
	stored, err := m.checkpointer.GetLease(ctx, lease.PartitionID)
	if err != nil {
		return false, err
	}

	now := m.clock.Now()
	if stored != nil && stored.IsOwnedBy(m.hostname) && !stored.IsExpired(now) {
		m.log.Debugf("Lease already owned. Skipping acquire for partition %s", lease.PartitionID)
		return false, nil
	}

	if stored == nil || !stored.IsOwnedBy(m.hostname) {
		epoch := lease.IncrementEpoch()
		m.log.Debugf("Incrementing epoch to %d for partition %s", epoch, lease.PartitionID)
	}

	lease.Owner = m.hostname
	lease.Owned = true
	lease.ExpireAtMillis = m.expiry(now)
	if err := m.checkpointer.SetLease(ctx, lease); err != nil {
		return false, err
	}

	m.mService.LeaseGained(lease.PartitionID)
	return true, nil
}

// RenewLease extends the lease expiry. It returns false without writing when another host
// holds the stored lease unexpired or when the stored lease has no owner.
func (m *CheckpointLeaseManager) RenewLease(ctx context.Context, baseLease par.BaseLease) (bool, error) {
	lease, err := AsLease(baseLease)
	if err != nil {
		return false, err
	}

	m.log.Debugf("Renewing lease for partition %s", lease.PartitionID)
	stored, err := m.checkpointer.GetLease(ctx, lease.PartitionID)
	if err != nil {
		return false, err
	}

	now := m.clock.Now()
	if m.isStolen(stored, now) {
		m.log.Debugf("Lease stolen by %s. Skipping renew for partition %s", stored.Owner, lease.PartitionID)
		m.mService.LeaseLost(lease.PartitionID)
		return false, nil
	}

	// a lease without owner was released and has to be acquired again
	if stored == nil || !stored.HasOwner() {
		m.log.Debugf("Lease released. Skipping renew for partition %s", lease.PartitionID)
		return false, nil
	}

	lease.ExpireAtMillis = m.expiry(now)
	if err := m.checkpointer.SetLease(ctx, lease); err != nil {
		return false, err
	}

	m.mService.LeaseRenewed(lease.PartitionID)
	return true, nil
}

// ReleaseLease writes nothing. The stored lease expires and becomes available to other hosts.
func (m *CheckpointLeaseManager) ReleaseLease(ctx context.Context, baseLease par.BaseLease) error {
	lease, err := AsLease(baseLease)
	if err != nil {
		return err
	}

	m.log.Debugf("Releasing lease for partition %s", lease.PartitionID)
	m.mService.LeaseReleased(lease.PartitionID)
	return nil
}

// UpdateLease overwrites the stored lease with the given one. It returns false without writing
// when another host holds the stored lease unexpired.
func (m *CheckpointLeaseManager) UpdateLease(ctx context.Context, baseLease par.BaseLease) (bool, error) {
	lease, err := AsLease(baseLease)
	if err != nil {
		return false, err
	}

	m.log.Debugf("Updating lease for partition %s", lease.PartitionID)
	stored, err := m.checkpointer.GetLease(ctx, lease.PartitionID)
	if err != nil {
		return false, err
	}
	if m.isStolen(stored, m.clock.Now()) {
		m.log.Debugf("Lease stolen. Skipping update for partition %s", lease.PartitionID)
		return false, nil
	}

	if err := m.checkpointer.SetLease(ctx, lease.Copy()); err != nil {
		return false, err
	}
	return true, nil
}

// isStolen reports whether another host holds the stored lease unexpired. A lease without
// owner, owned by this host, or expired is not stolen.
//
// An expired foreign lease counts as free even though a third host may have claimed it since
// it was read.
func (m *CheckpointLeaseManager) isStolen(stored *par.Lease, now time.Time) bool {
	if stored == nil || !stored.HasOwner() {
		return false
	}
	if stored.IsOwnedBy(m.hostname) {
		return false
	}
	return !stored.IsExpired(now)
}

func (m *CheckpointLeaseManager) expiry(now time.Time) int64 {
	return now.UnixMilli() + int64(m.kvConfig.LeaseDurationMillis)
}

func (m *CheckpointLeaseManager) connect(ctx context.Context) error {
	if m.checkpointer.IsConnected() {
		return nil
	}

	m.log.Infof("Connecting to %s store for %s", m.kvConfig.StoreType, m.kvConfig.KeyPrefix)
	return m.checkpointer.Init(ctx)
}
