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
package metrics

// MonitoringService receives lease and checkpoint events from the manager.
type MonitoringService interface {
	Init(keyPrefix, storeType, hostname string) error
	Start() error
	LeaseGained(string)
	LeaseLost(string)
	LeaseReleased(string)
	LeaseRenewed(string)
	CheckpointWritten(string)
	RecordFlushTime(int, float64)
	IncrStoreErrors(string)
	Shutdown()
}

// NoopMonitoringService implements MonitoringService by does nothing.
type NoopMonitoringService struct{}

func (NoopMonitoringService) Init(keyPrefix, storeType, hostname string) error { return nil }
func (NoopMonitoringService) Start() error                                     { return nil }
func (NoopMonitoringService) Shutdown()                                        {}

func (NoopMonitoringService) LeaseGained(partition string)              {}
func (NoopMonitoringService) LeaseLost(partition string)                {}
func (NoopMonitoringService) LeaseReleased(partition string)            {}
func (NoopMonitoringService) LeaseRenewed(partition string)             {}
func (NoopMonitoringService) CheckpointWritten(partition string)        {}
func (NoopMonitoringService) RecordFlushTime(count int, millis float64) {}
func (NoopMonitoringService) IncrStoreErrors(operation string)          {}
