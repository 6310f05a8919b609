package jobs

import (
	"context"
	"log"
	"time"

	"github.com/Tani1964/DelphiX/internal/config"
	"github.com/Tani1964/DelphiX/internal/sos"
)

// StartSOSSweepJob periodically escalates inactive SOS sessions. The sweep
// also runs on demand through the /sos/check endpoint; this job covers users
// whose client stopped sending anything at all.
func StartSOSSweepJob(ctx context.Context, cfg config.Config, monitor *sos.Monitor) {
	if !cfg.SOSSweepJobEnabled {
		return
	}
	interval := cfg.SOSSweepJobInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.SOSSweepJobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				escalated, err := monitor.Sweep(tickCtx)
				cancel()
				if err != nil {
					log.Printf("sos sweep job error: %v", err)
					continue
				}
				if escalated > 0 {
					log.Printf("sos sweep job escalated %d sessions", escalated)
				}
			}
		}
	}()
}
