package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// TelemetryWorker periodically logs process health alongside the
// outbound queue depth, the one internal signal that matters for a
// fan-out engine.
type TelemetryWorker struct {
	log        *slog.Logger
	interval   time.Duration
	queueDepth func() int
	proc       *process.Process
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration, queueDepth func() int) (*TelemetryWorker, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &TelemetryWorker{
		log:        log,
		interval:   interval,
		queueDepth: queueDepth,
		proc:       proc,
	}, nil
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *TelemetryWorker) report() {
	cpu, err := w.proc.CPUPercent()
	if err != nil {
		w.log.Debug("CPU sample failed", "error", err)
	}
	var rssMb uint64
	if mem, err := w.proc.MemoryInfo(); err == nil {
		rssMb = mem.RSS / 1024 / 1024
	}
	w.log.Info("Runtime stats",
		"cpu_percent", cpu,
		"rss_mb", rssMb,
		"goroutines", runtime.NumGoroutine(),
		"outbound_queue", w.queueDepth(),
	)
}
