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
package prometheus

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/metrics"
	"github.com/vmware/vmware-go-kvlease/logger"
)

var _ metrics.MonitoringService = (*MonitoringService)(nil)

func TestMonitoringService(t *testing.T) {
	p := NewMonitoringService("", logger.NewDiscardLogger())
	require.NoError(t, p.Init("orders-v1", "redis", "host-1"))
	require.NoError(t, p.Start())
	defer p.Shutdown()

	p.LeaseGained("0")
	p.LeaseGained("1")
	p.LeaseRenewed("0")
	p.LeaseRenewed("0")
	p.LeaseLost("1")
	p.CheckpointWritten("0")
	p.RecordFlushTime(3, 12)
	p.IncrStoreErrors("flush")
	p.LeaseGained("2")
	p.LeaseReleased("2")

	assert.Equal(t, float64(1), testutil.ToFloat64(p.leasesHeld.WithLabelValues("0")))
	assert.Equal(t, float64(0), testutil.ToFloat64(p.leasesHeld.WithLabelValues("1")))
	assert.Equal(t, float64(0), testutil.ToFloat64(p.leasesHeld.WithLabelValues("2")))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.leaseRenewals.WithLabelValues("0")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.leasesLost.WithLabelValues("1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.checkpointsWritten.WithLabelValues("0")))
	assert.Equal(t, float64(3), testutil.ToFloat64(p.flushedCheckpoints))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.storeErrors.WithLabelValues("flush")))

	families, err := p.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		assert.True(t, strings.HasPrefix(mf.GetName(), "orders_v1_"), mf.GetName())
	}
}

func TestInitTwiceFails(t *testing.T) {
	p := NewMonitoringService("", logger.NewDiscardLogger())
	require.NoError(t, p.Init("p", "nats", "h"))
	assert.Error(t, p.Init("p", "nats", "h"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "orders_lease", sanitize("orders_lease"))
	assert.Equal(t, "a_b_c", sanitize("a-b.c"))
	assert.Equal(t, "_9lives", sanitize("9lives"))
	assert.Equal(t, "kvlease", sanitize(""))
	assert.NotEqual(t, sanitize("1orders"), sanitize("2orders"))
	assert.Equal(t, "_1orders", sanitize("1orders"))
}
