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
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Delimiter separates the fields of an encoded record.
const Delimiter = ","

const (
	checkpointSegments = 2
	leaseSegments      = 3
)

// ErrCorruptRecord is returned when a stored value cannot be decoded. Stored values are never
// silently replaced with defaults.
type ErrCorruptRecord struct {
	PartitionID string
	Value       string
	Reason      string
}

func (e ErrCorruptRecord) Error() string {
	return fmt.Sprintf("corrupt record for partition %s (%q): %s", e.PartitionID, e.Value, e.Reason)
}

// ErrInvalidRecord is returned when a record cannot be encoded without loss.
type ErrInvalidRecord struct {
	PartitionID string
	Field       string
	Value       string
}

func (e ErrInvalidRecord) Error() string {
	return fmt.Sprintf("invalid %s %q for partition %s: must not contain %q", e.Field, e.Value, e.PartitionID, Delimiter)
}

// EncodeCheckpoint returns "<offset>,<sequenceNumber>".
func EncodeCheckpoint(checkpoint *Checkpoint) (string, error) {
	if strings.Contains(checkpoint.Offset, Delimiter) {
		return "", ErrInvalidRecord{PartitionID: checkpoint.PartitionID, Field: "offset", Value: checkpoint.Offset}
	}
	return checkpoint.Offset + Delimiter + strconv.FormatInt(checkpoint.SequenceNumber, 10), nil
}

// DecodeCheckpoint parses a value produced by EncodeCheckpoint.
func DecodeCheckpoint(partitionID, value string) (*Checkpoint, error) {
	segments := strings.Split(value, Delimiter)
	if len(segments) != checkpointSegments {
		return nil, ErrCorruptRecord{
			PartitionID: partitionID,
			Value:       value,
			Reason:      fmt.Sprintf("expected %d segments, got %d", checkpointSegments, len(segments)),
		}
	}

	sequenceNumber, err := strconv.ParseInt(segments[1], 10, 64)
	if err != nil {
		return nil, ErrCorruptRecord{PartitionID: partitionID, Value: value, Reason: "sequence number is not an integer"}
	}

	return NewCheckpoint(partitionID, segments[0], sequenceNumber), nil
}

// EncodeLease returns "<owner>,<epoch>,<expireAtMillis>". Owned is not persisted.
func EncodeLease(lease *Lease) (string, error) {
	if strings.Contains(lease.Owner, Delimiter) {
		return "", ErrInvalidRecord{PartitionID: lease.PartitionID, Field: "owner", Value: lease.Owner}
	}
	return lease.Owner + Delimiter +
		strconv.FormatInt(lease.Epoch, 10) + Delimiter +
		strconv.FormatInt(lease.ExpireAtMillis, 10), nil
}

// DecodeLease parses a value produced by EncodeLease and derives Owned as of now.
func DecodeLease(partitionID, value string, now time.Time) (*Lease, error) {
	segments := strings.Split(value, Delimiter)
	if len(segments) != leaseSegments {
		return nil, ErrCorruptRecord{
			PartitionID: partitionID,
			Value:       value,
			Reason:      fmt.Sprintf("expected %d segments, got %d", leaseSegments, len(segments)),
		}
	}

	epoch, err := strconv.ParseInt(segments[1], 10, 64)
	if err != nil {
		return nil, ErrCorruptRecord{PartitionID: partitionID, Value: value, Reason: "epoch is not an integer"}
	}
	if epoch < 0 {
		return nil, ErrCorruptRecord{PartitionID: partitionID, Value: value, Reason: "epoch is negative"}
	}

	expireAtMillis, err := strconv.ParseInt(segments[2], 10, 64)
	if err != nil {
		return nil, ErrCorruptRecord{PartitionID: partitionID, Value: value, Reason: "expiry is not an integer"}
	}

	lease := &Lease{
		PartitionID:    partitionID,
		Owner:          segments[0],
		Epoch:          epoch,
		ExpireAtMillis: expireAtMillis,
	}
	lease.deriveOwned(now)

	return lease, nil
}

func empty(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}
