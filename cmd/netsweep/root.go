package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"netsweep/internal/config"
	"netsweep/internal/logging"
	"netsweep/internal/scan"
)

// Build information, set by ldflags.
var (
	version = "dev"
	commit  = "none"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"subnet":           "scan.subnet",
	"ports":            "scan.ports",
	"timeout":          "scan.timeout",
	"concurrency":      "scan.concurrency",
	"udp":              "scan.udp",
	"icmp":             "scan.icmp",
	"exclude-edges":    "scan.exclude_edges",
	"deadline":         "scan.deadline",
	"resolve":          "resolve.enabled",
	"format":           "output.format",
	"output":           "output.file",
	"progress":         "output.progress",
	"metrics-textfile": "metrics.textfile",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

// cli carries per-invocation state so tests can run commands side by side.
type cli struct {
	v       *viper.Viper
	cfgFile string
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: config.NewViper(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "netsweep",
		Short: "Discover live hosts on the local IPv4 subnet",
		Long: `netsweep probes every address of the local subnet with TCP connects to a
fixed port list and a NetBIOS name query, then prints the hosts that answered
sorted by address.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScan(ctx, cfg, logger, c.stdout, c.stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetContext(context.Background())

	defaults := scan.DefaultConfig()
	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")

	f := root.Flags()
	f.StringP("subnet", "s", "", "subnet to scan in CIDR form (default: local interface subnet)")
	f.IntSliceP("ports", "p", defaults.Ports, "TCP ports to probe")
	f.Duration("timeout", defaults.Timeout, "per connect and receive timeout")
	f.IntP("concurrency", "c", defaults.Concurrency, "maximum hosts probed at once")
	f.Bool("udp", defaults.UDP, "send the NetBIOS name query to UDP/137")
	f.Bool("icmp", defaults.ICMP, "also send an ICMP echo")
	f.Bool("exclude-edges", defaults.ExcludeEdges, "skip network and broadcast addresses")
	f.Duration("deadline", 0, "abort the scan after this long (0 disables)")
	f.Bool("resolve", false, "look up names, MAC addresses and vendors of live hosts")
	f.StringP("format", "f", config.FormatTable, "output format (table, json, csv, yaml, plist)")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.String("progress", config.ProgressAuto, "progress bar (auto, always, never)")
	f.String("metrics-textfile", "", "write Prometheus metrics to this file after the scan")

	bindFlags(c.v, pf)
	bindFlags(c.v, f)

	root.AddCommand(newInterfacesCommand(c))
	return root
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(flag *pflag.Flag) {
		if key, ok := flagKeys[flag.Name]; ok {
			// Lookup never returns nil inside VisitAll.
			_ = v.BindPFlag(key, flag)
		}
	})
}

// load reads the config file if any, then decodes and validates everything.
func (c *cli) load() (config.Config, *zap.Logger, error) {
	if err := config.ReadFile(c.v, c.cfgFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(c.v)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log, c.stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
