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
// Package interfaces defines the capabilities the event processor host consumes: checkpoint
// persistence and partition lease management.
package interfaces

import (
	"context"

	par "github.com/vmware/vmware-go-kvlease/clientlibrary/partition"
)

// CheckpointManager persists the read position of each partition.
type CheckpointManager interface {
	// CheckpointStoreExists reports whether the store is connected.
	CheckpointStoreExists(ctx context.Context) (bool, error)

	// CreateCheckpointStoreIfNotExists connects to the store if not yet connected.
	CreateCheckpointStoreIfNotExists(ctx context.Context) error

	// DeleteCheckpointStore closes the store connection. Stored records are kept.
	DeleteCheckpointStore(ctx context.Context) error

	// GetCheckpoint returns nil when no checkpoint exists for the partition.
	GetCheckpoint(ctx context.Context, partitionID string) (*par.Checkpoint, error)

	// CreateAllCheckpointsIfNotExists seeds a checkpoint for every partition that has none.
	CreateAllCheckpointsIfNotExists(ctx context.Context, partitionIDs []string) error

	// UpdateCheckpoint records progress for the partition held by lease.
	UpdateCheckpoint(ctx context.Context, lease par.BaseLease, checkpoint *par.Checkpoint) error

	DeleteCheckpoint(ctx context.Context, partitionID string) error
}

// LeaseManager arbitrates partition ownership between hosts. Lost races are reported as false,
// never as errors.
type LeaseManager interface {
	// GetLeaseDurationMillis returns the configured lease lifetime.
	GetLeaseDurationMillis() int

	LeaseStoreExists(ctx context.Context) (bool, error)

	CreateLeaseStoreIfNotExists(ctx context.Context) error

	DeleteLeaseStore(ctx context.Context) error

	// GetLease returns nil when no lease exists for the partition.
	GetLease(ctx context.Context, partitionID string) (*par.Lease, error)

	// GetAllLeases returns ownership snapshots of every lease.
	GetAllLeases(ctx context.Context) ([]par.BaseLease, error)

	// CreateAllLeasesIfNotExists seeds an unowned lease for every partition that has none.
	CreateAllLeasesIfNotExists(ctx context.Context, partitionIDs []string) error

	// DeleteLease removes the lease unless another host actively holds it.
	DeleteLease(ctx context.Context, lease par.BaseLease) error

	// AcquireLease claims the lease for this host.
	AcquireLease(ctx context.Context, lease par.BaseLease) (bool, error)

	// RenewLease extends the expiry of a lease this host holds.
	RenewLease(ctx context.Context, lease par.BaseLease) (bool, error)

	// ReleaseLease gives up the lease. The stored lease is left to expire.
	ReleaseLease(ctx context.Context, lease par.BaseLease) error

	// UpdateLease overwrites the stored lease unless another host actively holds it.
	UpdateLease(ctx context.Context, lease par.BaseLease) (bool, error)
}
