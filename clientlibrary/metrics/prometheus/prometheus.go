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
	"context"
	"errors"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vmware/vmware-go-kvlease/logger"
)

// MonitoringService publishes lease and checkpoint metrics to Prometheus.
type MonitoringService struct {
	listenAddress string
	namespace     string
	storeType     string
	hostname      string
	logger        logger.Logger
	registry      *prom.Registry
	server        *http.Server

	leasesHeld         *prom.GaugeVec
	leaseRenewals      *prom.CounterVec
	leasesLost         *prom.CounterVec
	checkpointsWritten *prom.CounterVec
	flushedCheckpoints prom.Counter
	flushTime          prom.Histogram
	storeErrors        *prom.CounterVec
}

// NewMonitoringService returns a Monitoring service publishing metrics to Prometheus.
// An empty listenAddress registers the metrics without serving them.
func NewMonitoringService(listenAddress string, logger logger.Logger) *MonitoringService {
	return &MonitoringService{
		listenAddress: listenAddress,
		logger:        logger,
		registry:      prom.NewRegistry(),
	}
}

// Registry returns the registry holding the metrics, for embedding into an existing handler.
func (p *MonitoringService) Registry() *prom.Registry {
	return p.registry
}

func (p *MonitoringService) Init(keyPrefix, storeType, hostname string) error {
	p.namespace = sanitize(keyPrefix)
	p.storeType = storeType
	p.hostname = hostname

	constLabels := prom.Labels{"store": storeType, "hostname": hostname}
	p.leasesHeld = prom.NewGaugeVec(prom.GaugeOpts{
		Name:        p.namespace + `_leases_held`,
		Help:        "The number of leases held by the host",
		ConstLabels: constLabels,
	}, []string{"partition"})
	p.leaseRenewals = prom.NewCounterVec(prom.CounterOpts{
		Name:        p.namespace + `_lease_renewals`,
		Help:        "The number of successful lease renewals",
		ConstLabels: constLabels,
	}, []string{"partition"})
	p.leasesLost = prom.NewCounterVec(prom.CounterOpts{
		Name:        p.namespace + `_leases_lost`,
		Help:        "The number of leases found stolen by another host",
		ConstLabels: constLabels,
	}, []string{"partition"})
	p.checkpointsWritten = prom.NewCounterVec(prom.CounterOpts{
		Name:        p.namespace + `_checkpoints_written`,
		Help:        "The number of checkpoints accepted for writing",
		ConstLabels: constLabels,
	}, []string{"partition"})
	p.flushedCheckpoints = prom.NewCounter(prom.CounterOpts{
		Name:        p.namespace + `_flushed_checkpoints`,
		Help:        "The number of buffered checkpoints written by batch flushes",
		ConstLabels: constLabels,
	})
	p.flushTime = prom.NewHistogram(prom.HistogramOpts{
		Name:        p.namespace + `_flush_duration_seconds`,
		Help:        "The time taken to flush buffered checkpoints",
		ConstLabels: constLabels,
	})
	p.storeErrors = prom.NewCounterVec(prom.CounterOpts{
		Name:        p.namespace + `_store_errors`,
		Help:        "The number of failed store operations",
		ConstLabels: constLabels,
	}, []string{"operation"})

	metrics := []prom.Collector{
		p.leasesHeld,
		p.leaseRenewals,
		p.leasesLost,
		p.checkpointsWritten,
		p.flushedCheckpoints,
		p.flushTime,
		p.storeErrors,
	}
	for _, metric := range metrics {
		err := p.registry.Register(metric)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *MonitoringService) Start() error {
	if p.listenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.server = &http.Server{Addr: p.listenAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func(srv *http.Server) {
		p.logger.Infof("Starting Prometheus listener on %s", p.listenAddress)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Errorf("Error starting Prometheus metrics endpoint. %+v", err)
		}
		p.logger.Infof("Stopped metrics server")
	}(p.server)

	return nil
}

func (p *MonitoringService) Shutdown() {
	if p.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		p.logger.Warnf("Error stopping Prometheus metrics endpoint. %+v", err)
	}
	p.server = nil
}

func (p *MonitoringService) LeaseGained(partition string) {
	p.leasesHeld.With(prom.Labels{"partition": partition}).Set(1)
}

func (p *MonitoringService) LeaseLost(partition string) {
	p.leasesHeld.With(prom.Labels{"partition": partition}).Set(0)
	p.leasesLost.With(prom.Labels{"partition": partition}).Inc()
}

func (p *MonitoringService) LeaseReleased(partition string) {
	p.leasesHeld.With(prom.Labels{"partition": partition}).Set(0)
}

func (p *MonitoringService) LeaseRenewed(partition string) {
	p.leaseRenewals.With(prom.Labels{"partition": partition}).Inc()
}

func (p *MonitoringService) CheckpointWritten(partition string) {
	p.checkpointsWritten.With(prom.Labels{"partition": partition}).Inc()
}

func (p *MonitoringService) RecordFlushTime(count int, millis float64) {
	p.flushedCheckpoints.Add(float64(count))
	p.flushTime.Observe(millis / 1000)
}

func (p *MonitoringService) IncrStoreErrors(operation string) {
	p.storeErrors.With(prom.Labels{"operation": operation}).Inc()
}

// sanitize maps a key prefix onto the metric name alphabet [a-zA-Z0-9_].
func sanitize(prefix string) string {
	out := []byte(prefix)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "kvlease"
	}
	if out[0] >= '0' && out[0] <= '9' {
		return "_" + string(out)
	}
	return string(out)
}
