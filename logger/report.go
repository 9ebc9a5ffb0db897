package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type feedStat struct {
	messages int64
	bytes    int64
}

var (
	errorsStream     int64
	errorsSink       int64
	warnsStream      int64
	warnsSink        int64
	eventsDispatched int64
	eventsDropped    int64
	fillsTracked     int64
	sinkWrites       int64
	reconnects       int64
	feeds            sync.Map // map[string]*feedStat
)

func recordWarn(component string) {
	if strings.Contains(component, "sink") {
		atomic.AddInt64(&warnsSink, 1)
	} else {
		atomic.AddInt64(&warnsStream, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "sink") {
		atomic.AddInt64(&errorsSink, 1)
	} else {
		atomic.AddInt64(&errorsStream, 1)
	}
}

// IncrementEventDispatched counts one routed stream event for a feed.
func IncrementEventDispatched(feed string, size int) {
	atomic.AddInt64(&eventsDispatched, 1)
	recordFeed(feed, size)
}

// IncrementEventDropped counts a stream event that was logged and discarded.
func IncrementEventDropped(feed string) {
	atomic.AddInt64(&eventsDropped, 1)
	recordFeed(feed, 0)
}

// IncrementFillsTracked counts fills applied to the position tracker.
func IncrementFillsTracked(n int) {
	atomic.AddInt64(&fillsTracked, int64(n))
}

// IncrementSinkWrite counts one successful fill-sink persist call.
func IncrementSinkWrite(records int) {
	atomic.AddInt64(&sinkWrites, 1)
	recordFeed("fill_sink", records)
}

// IncrementReconnect counts one supervisor reconnect cycle.
func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

func recordFeed(name string, size int) {
	v, _ := feeds.LoadOrStore(name, &feedStat{})
	fs := v.(*feedStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// StartReport begins periodic logging of system and stream statistics and,
// when CloudWatch is configured, publishes them as metrics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)

	feedData := map[string]map[string]int64{}
	feeds.Range(func(k, v any) bool {
		name := k.(string)
		fs := v.(*feedStat)
		feedData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&fs.messages),
			"bytes":    atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_stream":     atomic.LoadInt64(&errorsStream),
		"errors_sink":       atomic.LoadInt64(&errorsSink),
		"warns_stream":      atomic.LoadInt64(&warnsStream),
		"warns_sink":        atomic.LoadInt64(&warnsSink),
		"events_dispatched": atomic.LoadInt64(&eventsDispatched),
		"events_dropped":    atomic.LoadInt64(&eventsDropped),
		"fills_tracked":     atomic.LoadInt64(&fillsTracked),
		"sink_writes":       atomic.LoadInt64(&sinkWrites),
		"reconnects":        atomic.LoadInt64(&reconnects),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memStats.Used) / 1024 / 1024,
		"disk_mb":           int64(diskStats.Used) / 1024 / 1024,
		"feeds":             feedData,
		"net_bytes_sent":    int64(bytesSent),
		"net_bytes_recv":    int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsStream"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_stream"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsSink"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_sink"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("EventsDispatched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_dispatched"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("EventsDropped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["events_dropped"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FillsTracked"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["fills_tracked"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SinkWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["sink_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Reconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["reconnects"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range feedData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FeedMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Feed"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FeedBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Feed"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
