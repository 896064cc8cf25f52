package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/relay/internal"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sys/cpu"
)

type relayMetrics struct {
	tel *internal.Telemetry

	// submittedItems is written by the producers
	submittedItems atomic.Int64

	_ cpu.CacheLinePad

	// the following counters are written by the consumer goroutine only,
	// processedItems does not include the items that failed
	processedItems   atomic.Int64
	processingErrors atomic.Int64
	lostItems        atomic.Int64

	_ cpu.CacheLinePad

	queueLatency *internal.Histogram
}

func newRelayMetrics(tel *internal.Telemetry) *relayMetrics {
	return &relayMetrics{
		tel: tel,
	}
}

func (rm *relayMetrics) init(activeHandles, pendingItems func() int64) {
	rm.tel.NewCounter("submitted_items", func() int64 { return rm.submittedItems.Load() })
	rm.tel.NewCounter("processed_items", func() int64 { return rm.processedItems.Load() })
	rm.tel.NewCounter("processing_errors", func() int64 { return rm.processingErrors.Load() })
	rm.tel.NewCounter("lost_items", func() int64 { return rm.lostItems.Load() })

	rm.tel.NewUpDownCounter("active_handles", activeHandles)
	rm.tel.NewUpDownCounter("pending_items", pendingItems)

	rm.queueLatency = rm.tel.NewHistogram("queue_latency", metric.WithUnit("ms"))
}

func (rm *relayMetrics) incrementSubmittedItems() {
	rm.submittedItems.Add(1)
}

func (rm *relayMetrics) incrementProcessedItems() {
	rm.processedItems.Add(1)
}

func (rm *relayMetrics) incrementProcessingErrors() {
	rm.processingErrors.Add(1)
}

func (rm *relayMetrics) addLostItems(amount int) {
	rm.lostItems.Add(int64(amount))
}

func (rm *relayMetrics) recordQueueLatency(ctx context.Context, latency time.Duration) {
	rm.queueLatency.Record(ctx, latency.Milliseconds())
}
