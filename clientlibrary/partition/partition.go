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
package partition

import (
	"time"
)

// Checkpoint is the last durably processed read position of a partition.
type Checkpoint struct {
	PartitionID string
	// Offset is an opaque position marker within the stream.
	Offset         string
	SequenceNumber int64
}

// NewCheckpoint creates a Checkpoint for the given partition.
func NewCheckpoint(partitionID, offset string, sequenceNumber int64) *Checkpoint {
	return &Checkpoint{
		PartitionID:    partitionID,
		Offset:         offset,
		SequenceNumber: sequenceNumber,
	}
}

// BaseLease is the ownership view of a lease handed to the host framework.
type BaseLease interface {
	GetPartitionID() string
	GetOwner() string
	GetEpoch() int64
	IsOwned() bool
}

// Lease is a time-bounded ownership claim over one partition.
type Lease struct {
	PartitionID string
	// Owner is the processor hostname holding the lease, "" when unowned or released.
	Owner string
	// Epoch is incremented every time ownership transfers to a new claimant.
	Epoch int64
	// ExpireAtMillis is the Unix epoch millisecond after which the lease is expired.
	ExpireAtMillis int64
	// Owned is derived when the lease is decoded and is never persisted.
	Owned bool
}

// NewLease creates an unowned lease.
func NewLease(partitionID string, epoch, expireAtMillis int64) *Lease {
	return &Lease{
		PartitionID:    partitionID,
		Epoch:          epoch,
		ExpireAtMillis: expireAtMillis,
	}
}

func (l *Lease) GetPartitionID() string { return l.PartitionID }
func (l *Lease) GetOwner() string       { return l.Owner }
func (l *Lease) GetEpoch() int64        { return l.Epoch }
func (l *Lease) IsOwned() bool          { return l.Owned }

// ExpireAt returns the expiry as a time.Time.
func (l *Lease) ExpireAt() time.Time {
	return time.UnixMilli(l.ExpireAtMillis)
}

// IsExpired reports whether the lease is expired as of now.
func (l *Lease) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= l.ExpireAtMillis
}

// IsOwnedBy reports whether owner holds the lease, regardless of expiry.
func (l *Lease) IsOwnedBy(owner string) bool {
	return l.Owner == owner
}

// HasOwner reports whether any host has claimed the lease. Blank owners count as unowned.
func (l *Lease) HasOwner() bool {
	return !empty(l.Owner)
}

// IncrementEpoch bumps the generation counter.
func (l *Lease) IncrementEpoch() int64 {
	l.Epoch++
	return l.Epoch
}

// Copy returns a shallow copy of the lease.
func (l *Lease) Copy() *Lease {
	c := *l
	return &c
}

// deriveOwned recomputes Owned: an owner is set and the lease has not expired.
func (l *Lease) deriveOwned(now time.Time) {
	l.Owned = l.HasOwner() && !l.IsExpired(now)
}
