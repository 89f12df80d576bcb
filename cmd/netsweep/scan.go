package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"netsweep/internal/config"
	"netsweep/internal/metrics"
	"netsweep/internal/netif"
	"netsweep/internal/report"
	"netsweep/internal/resolve"
	"netsweep/internal/scan"
)

// runScan resolves the target subnet, runs the sweep and writes the report.
// Only configuration problems are returned as errors; an interrupted scan
// still reports what it found.
func runScan(ctx context.Context, cfg config.Config, logger *zap.Logger, stdout, stderr io.Writer) error {
	subnet, err := targetSubnet(cfg.Scan.Subnet, logger)
	if err != nil {
		return err
	}

	if cfg.Scan.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Scan.Deadline)
		defer cancel()
	}

	scanCfg := cfg.ProbeConfig()
	m := metrics.New()
	opts := []scan.ManagerOption{scan.WithObserver(m)}

	var bar *report.ProgressBar
	if report.ShowProgress(cfg.Output.Progress, asFile(stderr)) {
		bar = report.NewProgressBar(stderr)
		opts = append(opts, scan.WithProgress(bar.Update))
	}

	manager := scan.NewManager(scanCfg, scan.NewProber(scanCfg, logger), logger, opts...)
	snapshot, scanErr := manager.Scan(ctx, subnet)
	if bar != nil {
		bar.Finish()
	}
	m.ScanFinished(snapshot.Finished)
	if scanErr != nil {
		if !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
			return scanErr
		}
		logger.Warn("scan stopped early, reporting partial results", zap.Error(scanErr))
	}

	rep := report.Report{Snapshot: snapshot}
	if cfg.Resolve.Enabled && len(snapshot.Hosts) > 0 {
		// Enrichment gets its own budget so an interrupted scan can still be named.
		resolveCtx := context.WithoutCancel(ctx)
		rep.Details = resolve.New(cfg.Resolve.Timeout, logger).Resolve(resolveCtx, snapshot.Hosts)
	}

	if err := writeReport(cfg.Output, rep, stdout); err != nil {
		return err
	}

	if path := cfg.Metrics.Textfile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}
	return nil
}

func targetSubnet(configured string, logger *zap.Logger) (scan.Subnet, error) {
	if configured != "" {
		return scan.ParseSubnet(configured)
	}
	candidate, err := netif.Default()
	if err != nil {
		return scan.Subnet{}, fmt.Errorf("detect local subnet: %w", err)
	}
	logger.Info("using local interface",
		zap.String("interface", candidate.Interface),
		zap.Stringer("address", candidate.Address),
		zap.Stringer("subnet", candidate.Subnet),
	)
	return candidate.Subnet, nil
}

func writeReport(out config.OutputConfig, rep report.Report, stdout io.Writer) error {
	if out.File == "" {
		return report.Write(stdout, out.Format, rep)
	}
	f, err := os.Create(out.File)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := report.Write(f, out.Format, rep); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

func asFile(w io.Writer) *os.File {
	f, _ := w.(*os.File)
	return f
}

// scanTimeout is the worst case for one host, used in interface listings.
func scanTimeout(cfg scan.Config) time.Duration {
	steps := len(cfg.Ports)
	if cfg.UDP {
		steps++
	}
	if cfg.ICMP {
		steps++
	}
	return time.Duration(steps) * cfg.Timeout
}
