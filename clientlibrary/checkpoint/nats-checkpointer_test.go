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
	"net"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
	par "github.com/vmware/vmware-go-kvlease/clientlibrary/partition"
	"github.com/vmware/vmware-go-kvlease/logger"
)

func startEmbeddedNATS(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func newNatsConfig(t *testing.T, ns *server.Server) *config.KVCheckpointConfiguration {
	t.Helper()
	addr, ok := ns.Addr().(*net.TCPAddr)
	require.True(t, ok)

	return config.NewKVCheckpointConfig("host-1", "127.0.0.1", "orders").
		WithStoreType(config.NATS).
		WithPort(addr.Port).
		WithConnectTimeoutMillis(2000).
		WithLogger(logger.NewDiscardLogger())
}

func TestNatsInitCreatesBuckets(t *testing.T) {
	ns := startEmbeddedNATS(t)
	checkpoint := NewNatsCheckpoint(newNatsConfig(t, ns))
	ctx := context.Background()

	require.NoError(t, checkpoint.Init(ctx))
	assert.True(t, checkpoint.IsConnected())
	require.NoError(t, checkpoint.Close())
	assert.False(t, checkpoint.IsConnected())

	// reconnect against the existing buckets
	require.NoError(t, checkpoint.Init(ctx))
	defer checkpoint.Close()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	for _, bucket := range []string{"orders", "orders_lease"} {
		_, err := js.KeyValue(ctx, bucket)
		assert.NoError(t, err, bucket)
	}
}

func TestNatsCheckpointsAndLeases(t *testing.T) {
	ns := startEmbeddedNATS(t)
	checkpoint := NewNatsCheckpoint(newNatsConfig(t, ns))
	ctx := context.Background()
	require.NoError(t, checkpoint.Init(ctx))
	defer checkpoint.Close()

	all, err := checkpoint.GetAllCheckpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, checkpoint.SetCheckpoint(ctx, par.NewCheckpoint("0", "77", 3)))
	stored, err := checkpoint.GetCheckpoint(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, par.NewCheckpoint("0", "77", 3), stored)

	missing, err := checkpoint.GetCheckpoint(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	lease := par.NewLease("0", 2, time.Now().Add(time.Minute).UnixMilli())
	lease.Owner = "host-1"
	require.NoError(t, checkpoint.SetLease(ctx, lease))
	storedLease, err := checkpoint.GetLease(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, "host-1", storedLease.Owner)
	assert.True(t, storedLease.IsOwned())

	baseLeases, err := checkpoint.GetBaseLeases(ctx)
	require.NoError(t, err)
	assert.Len(t, baseLeases, 1)

	require.NoError(t, checkpoint.DeleteLease(ctx, "0"))
	storedLease, err = checkpoint.GetLease(ctx, "0")
	require.NoError(t, err)
	assert.Nil(t, storedLease)

	leases, err := checkpoint.GetAllLeases(ctx)
	require.NoError(t, err)
	assert.Empty(t, leases)
}

func TestNatsBatchedFlush(t *testing.T) {
	ns := startEmbeddedNATS(t)
	kvConfig := newNatsConfig(t, ns).WithBatchCheckpointWrites(true).WithBatchIntervalMillis(60000)
	checkpoint := NewNatsCheckpoint(kvConfig)
	ctx := context.Background()
	require.NoError(t, checkpoint.Init(ctx))

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, checkpoint.SetCheckpoint(ctx, par.NewCheckpoint("0", "x", i)))
		require.NoError(t, checkpoint.SetCheckpoint(ctx, par.NewCheckpoint("1", "y", i)))
	}
	stored, err := checkpoint.GetCheckpoint(ctx, "0")
	require.NoError(t, err)
	assert.Nil(t, stored)

	require.NoError(t, checkpoint.Flush(ctx))
	all, err := checkpoint.GetAllCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(4), all["0"].SequenceNumber)
	assert.Equal(t, int64(4), all["1"].SequenceNumber)

	require.NoError(t, checkpoint.Close())
}

func TestNatsWithInjectedConn(t *testing.T) {
	ns := startEmbeddedNATS(t)
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	kvConfig := config.NewKVCheckpointConfig("host-1", "", "orders").
		WithStoreType(config.NATS).
		WithLogger(logger.NewDiscardLogger())
	checkpoint := NewNatsCheckpoint(kvConfig).WithNatsConn(nc)
	ctx := context.Background()

	require.NoError(t, checkpoint.Init(ctx))
	require.NoError(t, checkpoint.SetCheckpoint(ctx, par.NewCheckpoint("0", "1", 1)))
	require.NoError(t, checkpoint.Close())
	assert.True(t, nc.IsConnected())

	_, err = checkpoint.GetCheckpoint(ctx, "0")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNatsDisconnectedMode(t *testing.T) {
	kvConfig := config.NewKVCheckpointConfig("host-1", "", "orders").
		WithStoreType(config.NATS).
		WithLogger(logger.NewDiscardLogger())
	checkpoint := NewNatsCheckpoint(kvConfig)

	require.NoError(t, checkpoint.Init(context.Background()))
	assert.False(t, checkpoint.IsConnected())
	assert.NoError(t, checkpoint.Close())
}
