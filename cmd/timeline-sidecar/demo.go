package main

import (
	"math/rand"
	"time"

	exporters "github.com/juvenn/timeline-exporters"
	"github.com/rcrowley/go-metrics"
)

// Register a few broker like metrics and keep updating them until stopped.
func startDemo(reg metrics.Registry) (stop func()) {
	messagesIn := metrics.NewMeter()
	bytesIn := metrics.NewMeter()
	produce := metrics.NewTimer()
	requestSize := metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015))
	partitions := metrics.NewGauge()
	requests := metrics.NewCounter()

	exporters.Register(reg, exporters.MetricName{Group: "kafka.server", Type: "BrokerTopicMetrics", Name: "MessagesInPerSec"}, messagesIn)
	exporters.Register(reg, exporters.MetricName{Group: "kafka.server", Type: "BrokerTopicMetrics", Name: "BytesInPerSec", Scope: "topic.orders"}, bytesIn)
	exporters.Register(reg, exporters.MetricName{Group: "kafka.network", Type: "RequestMetrics", Name: "TotalTimeMs", Scope: "request.Produce"}, produce)
	exporters.Register(reg, exporters.MetricName{Group: "kafka.network", Type: "RequestMetrics", Name: "RequestBytes", Scope: "request.Produce"}, requestSize)
	exporters.Register(reg, exporters.MetricName{Group: "kafka.server", Type: "ReplicaManager", Name: "PartitionCount"}, partitions)
	exporters.Register(reg, exporters.MetricName{Group: "kafka.network", Type: "RequestChannel", Name: "RequestCount"}, requests)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n := rand.Int63n(50)
				messagesIn.Mark(n)
				bytesIn.Mark(n * 512)
				produce.Update(time.Duration(rand.Int63n(20)) * time.Millisecond)
				requestSize.Update(512 + rand.Int63n(4096))
				partitions.Update(64)
				requests.Inc(1)
			}
		}
	}()
	return func() { close(done) }
}
