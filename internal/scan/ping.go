package scan

import (
	"context"
	"runtime"
	"time"

	ping "github.com/go-ping/ping"
)

// pingHost sends one echo request. Missing privileges, resolution errors and
// timeouts all read as "no reply".
func pingHost(ctx context.Context, host string, timeout time.Duration) bool {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return false
	}

	if runtime.GOOS == "windows" {
		pinger.SetPrivileged(true)
	} else {
		pinger.SetPrivileged(false)
	}
	pinger.Count = 1
	pinger.Timeout = timeout

	errCh := make(chan error, 1)
	go func() {
		errCh <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-errCh
		return false
	case err := <-errCh:
		if err != nil {
			return false
		}
	}

	stats := pinger.Statistics()
	return stats != nil && stats.PacketsRecv > 0
}
