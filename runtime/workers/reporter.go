package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Gauges is implemented by the registry so the reporter can log live
// coordination state without importing the runtime package.
type Gauges interface {
	Counts() (sessions, users, rooms int)
}

// StatsReporter periodically logs the coordination counters together with the
// process's own RSS and CPU usage. It is the only consumer of the monitoring
// counters inside the server; everything else just increments them.
type StatsReporter struct {
	log        *slog.Logger
	monitoring *observability.Monitoring
	gauges     Gauges
	interval   time.Duration
}

func NewStatsReporter(log *slog.Logger, monitoring *observability.Monitoring,
	gauges Gauges, interval time.Duration) *StatsReporter {
	return &StatsReporter{log: log, monitoring: monitoring, gauges: gauges, interval: interval}
}

func (w *StatsReporter) Run(ctx context.Context) error {
	w.log.Info("Starting stats reporter worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			stats := w.monitoring.GetLatest()
			sessions, users, rooms := w.gauges.Counts()
			w.log.Info("coordination stats",
				"sessions", sessions,
				"users_online", users,
				"active_rooms", rooms,
				"messages_sent", stats.MessagesSent,
				"messages_failed", stats.MessagesFailed,
				"delivered_update_failed", stats.DeliveredUpdateFailed,
				"seen_update_failed", stats.SeenUpdateFailed,
				"events_dropped", stats.EventsDropped,
				"malformed_inbound", stats.MalformedInboundEvents,
				"rss_bytes", rss,
				"cpu_percent", cpu,
			)
		}
	}
}

// selfStats retrieves memory and CPU usage for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
