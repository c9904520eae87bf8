package app

import (
	"context"
	"log"
	"time"
)

func startHousekeeping(ctx context.Context, queue *BatchQueue) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RotateLogsIfNeeded()
			monitorRuntime()
			reportBatches(queue)
		}
	}
}

var lastGoroutines int
var lastAliveLog time.Time

func monitorRuntime() {
	gor, alloc, _, sys := runtimeStats()
	if lastGoroutines > 0 && gor > lastGoroutines+300 {
		log.Printf("⚠️ Possible leak: goroutines grew %d -> %d", lastGoroutines, gor)
	}
	if gor > 2000 {
		log.Printf("⚠️ Too many goroutines: %d", gor)
	}
	if alloc > 600*1024*1024 {
		log.Printf("⚠️ High memory usage: %s (sys %s)", formatBytes(alloc), formatBytes(sys))
	}
	if lastAliveLog.IsZero() || time.Since(lastAliveLog) > 6*time.Hour {
		uptime := time.Since(appStartedAt)
		log.Printf("💓 Watchdog: uptime %s, goroutines %d, mem %s", formatDuration(uptime), gor, formatBytes(alloc))
		lastAliveLog = time.Now()
	}
	lastGoroutines = gor
}

// reportBatches flags batches that have been running for an unusually long time.
func reportBatches(queue *BatchQueue) {
	if queue == nil {
		return
	}
	for _, st := range queue.Active() {
		age := time.Since(st.StartedAt)
		if age > 30*time.Minute {
			log.Printf("⚠️ batch %s for actor %d running for %s (queued %d, received %d)",
				st.JobID, st.ActorID, formatDuration(age), st.Pending, st.Tally.Received)
		}
	}
}
