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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	cp := NewCheckpoint("3", "4294967296", 1234)

	value, err := EncodeCheckpoint(cp)
	require.NoError(t, err)
	assert.Equal(t, "4294967296,1234", value)

	decoded, err := DecodeCheckpoint("3", value)
	require.NoError(t, err)
	assert.Equal(t, cp, decoded)
}

func TestCheckpointEndOfStreamOffset(t *testing.T) {
	value, err := EncodeCheckpoint(NewCheckpoint("0", "@latest", 0))
	require.NoError(t, err)

	decoded, err := DecodeCheckpoint("0", value)
	require.NoError(t, err)
	assert.Equal(t, "@latest", decoded.Offset)
	assert.Equal(t, int64(0), decoded.SequenceNumber)
}

func TestEncodeCheckpointRejectsDelimiter(t *testing.T) {
	_, err := EncodeCheckpoint(NewCheckpoint("0", "12,13", 1))
	var invalid ErrInvalidRecord
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "offset", invalid.Field)
}

func TestDecodeCheckpointCorrupt(t *testing.T) {
	for _, value := range []string{"", "100", "100,1,2", "100,abc", "100,"} {
		_, err := DecodeCheckpoint("7", value)
		var corrupt ErrCorruptRecord
		if assert.Truef(t, errors.As(err, &corrupt), "value %q", value) {
			assert.Equal(t, "7", corrupt.PartitionID)
			assert.Equal(t, value, corrupt.Value)
		}
	}
}

func TestLeaseRoundTrip(t *testing.T) {
	now := time.UnixMilli(1_600_000_000_000)
	lease := &Lease{
		PartitionID:    "1",
		Owner:          "host-a",
		Epoch:          42,
		ExpireAtMillis: now.UnixMilli() + 30000,
	}

	value, err := EncodeLease(lease)
	require.NoError(t, err)
	assert.Equal(t, "host-a,42,1600000030000", value)

	decoded, err := DecodeLease("1", value, now)
	require.NoError(t, err)
	assert.Equal(t, lease.Owner, decoded.Owner)
	assert.Equal(t, lease.Epoch, decoded.Epoch)
	assert.Equal(t, lease.ExpireAtMillis, decoded.ExpireAtMillis)
	assert.True(t, decoded.IsOwned())
}

func TestDecodeLeaseDerivesOwnership(t *testing.T) {
	now := time.UnixMilli(10_000)

	unowned, err := DecodeLease("0", ",0,0", now)
	require.NoError(t, err)
	assert.False(t, unowned.IsOwned())
	assert.False(t, unowned.HasOwner())

	expired, err := DecodeLease("0", "host-a,3,10000", now)
	require.NoError(t, err)
	assert.True(t, expired.IsExpired(now))
	assert.False(t, expired.IsOwned())

	blank, err := DecodeLease("0", "  ,1,20000", now)
	require.NoError(t, err)
	assert.False(t, blank.IsOwned())

	active, err := DecodeLease("0", "host-a,3,10001", now)
	require.NoError(t, err)
	assert.True(t, active.IsOwned())
}

func TestDecodeLeaseCorrupt(t *testing.T) {
	values := []string{
		"",
		"host-a,1",
		"host-a,1,2,3",
		"host-a,one,2",
		"host-a,-1,2",
		"host-a,1,soon",
	}
	for _, value := range values {
		lease, err := DecodeLease("9", value, time.Now())
		assert.Nil(t, lease)
		var corrupt ErrCorruptRecord
		assert.Truef(t, errors.As(err, &corrupt), "value %q", value)
	}
}

func TestEncodeLeaseRejectsDelimiter(t *testing.T) {
	_, err := EncodeLease(&Lease{PartitionID: "0", Owner: "a,b"})
	var invalid ErrInvalidRecord
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "owner", invalid.Field)
}

func TestLeaseHelpers(t *testing.T) {
	lease := NewLease("5", 0, 0)
	assert.Equal(t, "5", lease.GetPartitionID())
	assert.Equal(t, "", lease.GetOwner())
	assert.Equal(t, int64(1), lease.IncrementEpoch())
	assert.Equal(t, int64(1), lease.GetEpoch())

	lease.Owner = "host-b"
	assert.True(t, lease.IsOwnedBy("host-b"))
	assert.False(t, lease.IsOwnedBy("host-a"))

	c := lease.Copy()
	c.Owner = "host-c"
	assert.Equal(t, "host-b", lease.Owner)

	var base BaseLease = lease
	assert.Equal(t, "host-b", base.GetOwner())
	assert.Equal(t, int64(0), lease.ExpireAt().UnixMilli())
}
