package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Reporter is a supervised worker that logs a process health snapshot at a
// fixed interval: hub counters, Go memory stats, and self CPU/RAM read via
// the OS process table.
type Reporter struct {
	log      *slog.Logger
	stats    *Stats
	interval time.Duration
}

func NewReporter(log *slog.Logger, stats *Stats, interval time.Duration) *Reporter {
	return &Reporter{log: log, stats: stats, interval: interval}
}

func (r *Reporter) Run(ctx context.Context) error {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Context done, stopping health reporting")
			return nil
		case <-ticker.C:
			r.report(self)
		}
	}
}

func (r *Reporter) report(self *process.Process) {
	snapshot := r.stats.Snapshot()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cpu, err := self.CPUPercent()
	if err != nil {
		r.log.Debug("Error while finding process cpu usage", "err", err)
	}
	ram, err := self.MemoryPercent()
	if err != nil {
		r.log.Debug("Error while finding process ram usage", "err", err)
	}

	r.log.Info("Health snapshot",
		"connections_opened", snapshot.ConnectionsOpened,
		"connections_closed", snapshot.ConnectionsClosed,
		"messages_posted", snapshot.MessagesPosted,
		"frames_sent", snapshot.FramesSent,
		"frames_buffered", snapshot.FramesBuffered,
		"heartbeat_timeouts", snapshot.HeartbeatTimeouts,
		"goroutines", runtime.NumGoroutine(),
		"alloc_mb", m.Alloc/1024/1024,
		"num_gc", m.NumGC,
		"cpu_pct", cpu,
		"ram_pct", ram,
	)
}
