// Package resolve attaches names and hardware identity to hosts a scan found
// live. Every lookup is best effort; a failed lookup leaves its field empty.
package resolve

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"netsweep/internal/scan"
)

const (
	// DefaultTimeout bounds the whole enrichment pass.
	DefaultTimeout = 4 * time.Second
	defaultWorkers = 32
)

// Details is what enrichment learned about one host.
type Details struct {
	Hostnames    []string `json:"hostnames,omitempty"`
	MDNSNames    []string `json:"mdnsNames,omitempty"`
	NetBIOSNames []string `json:"netbiosNames,omitempty"`
	SMB          *SMBInfo `json:"smb,omitempty"`
	MacAddress   string   `json:"macAddress,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	DeviceName   string   `json:"deviceName,omitempty"`
}

// Resolver runs the lookups for a batch of live hosts.
type Resolver struct {
	timeout time.Duration
	workers int
	logger  *zap.Logger

	hostnames  func(ctx context.Context, addr scan.Address) []string
	neighbours func() neighbourTable
	arp        func(ctx context.Context, addr scan.Address) string
	smbCall    smbCallFunc
	mdns       func(ctx context.Context) map[string][]string
}

// New returns a Resolver using the system resolver, mDNS, the ARP table and
// anonymous SMB. timeout bounds the whole pass and each SMB exchange.
func New(timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		timeout:   timeout,
		workers:   defaultWorkers,
		logger:    logger.With(zap.String("component", "resolve")),
		hostnames: lookupHostnames,
		arp:       arpCommand,
		mdns:      browseMDNS,
	}
	r.neighbours = r.loadNeighbourTable
	r.smbCall = r.callSMBPipe
	return r
}

// Resolve enriches every outcome. The returned map has an entry for each
// input address, even when nothing was learned.
func (r *Resolver) Resolve(ctx context.Context, hosts []scan.Outcome) map[scan.Address]Details {
	results := make(map[scan.Address]Details, len(hosts))
	if len(hosts) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	mdnsCh := make(chan map[string][]string, 1)
	go func() {
		mdnsCh <- r.mdns(ctx)
	}()

	neighbours := r.neighbours()
	details := make([]Details, len(hosts))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, outcome := range hosts {
		g.Go(func() error {
			details[i] = r.lookupHost(ctx, outcome, neighbours)
			return nil
		})
	}
	_ = g.Wait()

	mdns := <-mdnsCh
	for i, outcome := range hosts {
		d := details[i]
		d.MDNSNames = mdns[outcome.Address.String()]
		d.DeviceName = selectDeviceName(d)
		results[outcome.Address] = d
	}

	r.logger.Debug("enrichment finished",
		zap.Int("hosts", len(hosts)),
		zap.Int("mdns_hosts", len(mdns)),
		zap.Int("neighbours", len(neighbours)),
	)
	return results
}

func (r *Resolver) lookupHost(ctx context.Context, outcome scan.Outcome, neighbours neighbourTable) Details {
	addr := outcome.Address
	d := Details{NetBIOSNames: outcome.NetBIOSNames}

	d.Hostnames = r.hostnames(ctx, addr)
	d.MacAddress = neighbours[addr]
	if d.MacAddress == "" {
		d.MacAddress = r.arp(ctx, addr)
	}
	d.Manufacturer = vendorFor(d.MacAddress)
	if outcome.Has(scan.ProtocolTCP, smbPort) {
		d.SMB = r.lookupSMB(ctx, addr)
	}
	return d
}

func selectDeviceName(d Details) string {
	// mDNS names are the most user friendly
	if len(d.MDNSNames) > 0 {
		return d.MDNSNames[0]
	}
	if len(d.NetBIOSNames) > 0 {
		return d.NetBIOSNames[0]
	}
	if d.SMB != nil && d.SMB.ComputerName != "" {
		return d.SMB.ComputerName
	}
	if len(d.Hostnames) > 0 {
		return d.Hostnames[0]
	}
	return ""
}
