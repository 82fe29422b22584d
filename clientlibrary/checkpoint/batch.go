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
	"sync"
	"time"
)

// checkpointBuffer holds the latest encoded checkpoint of each partition until it is flushed.
type checkpointBuffer struct {
	mu      sync.Mutex
	pending map[string]string
}

func newCheckpointBuffer() *checkpointBuffer {
	return &checkpointBuffer{pending: make(map[string]string)}
}

// put replaces any value buffered for the partition.
func (b *checkpointBuffer) put(partitionID, value string) {
	b.mu.Lock()
	b.pending[partitionID] = value
	b.mu.Unlock()
}

// drain hands over everything buffered and leaves the buffer empty.
func (b *checkpointBuffer) drain() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	drained := b.pending
	b.pending = make(map[string]string, len(drained))
	return drained
}

// requeue puts back drained values that were not superseded while the flush was running.
func (b *checkpointBuffer) requeue(drained map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for partitionID, value := range drained {
		if _, ok := b.pending[partitionID]; !ok {
			b.pending[partitionID] = value
		}
	}
}

func (b *checkpointBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// flusher calls flush every interval until stopped.
type flusher struct {
	interval time.Duration
	flush    func(context.Context) error
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func startFlusher(interval time.Duration, flush func(context.Context) error) *flusher {
	f := &flusher{
		interval: interval,
		flush:    flush,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *flusher) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			// errors are logged and the values re-queued by flush
			_ = f.flush(context.Background())
		}
	}
}

// Stop cancels the ticker and waits for an in-flight flush to return.
func (f *flusher) Stop() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
	<-f.done
}
