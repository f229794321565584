package handler

import (
	"sync/atomic"
	"time"

	"tg-groupguard/internal/crash"
	"tg-groupguard/internal/logger"
)

var (
	messageCount   int64
	commandCount   int64
	violationCount int64
	errorCount     int64
)

func incrementMessageCount()   { atomic.AddInt64(&messageCount, 1) }
func incrementCommandCount()   { atomic.AddInt64(&commandCount, 1) }
func incrementViolationCount() { atomic.AddInt64(&violationCount, 1) }
func incrementErrorCount()     { atomic.AddInt64(&errorCount, 1) }

// GetProcessingStats returns a snapshot of handler counters and the sizes of
// the in-memory moderation registries.
func GetProcessingStats() map[string]int64 {
	stats := map[string]int64{
		"messages_processed": atomic.LoadInt64(&messageCount),
		"commands_processed": atomic.LoadInt64(&commandCount),
		"violations_found":   atomic.LoadInt64(&violationCount),
		"errors":             atomic.LoadInt64(&errorCount),
	}
	if guardian != nil {
		stats["pending_deletions"] = int64(guardian.Scheduler.Len())
		stats["flood_windows"] = int64(guardian.Flood.Len())
		stats["dedup_entries"] = int64(guardian.Dedup.Len())
	}
	return stats
}

// StartStatsLogging periodically writes the processing counters to the log.
func StartStatsLogging(interval time.Duration) {
	crash.SafeGoroutine("stats-logging", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			stats := GetProcessingStats()
			logger.Infof("processing stats: messages=%d commands=%d violations=%d errors=%d pending_deletions=%d flood_windows=%d dedup_entries=%d",
				stats["messages_processed"], stats["commands_processed"], stats["violations_found"],
				stats["errors"], stats["pending_deletions"], stats["flood_windows"], stats["dedup_entries"])
		}
	})
}
