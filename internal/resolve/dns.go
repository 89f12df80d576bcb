package resolve

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"netsweep/internal/scan"
)

// mdnsServiceTypes are browsed once per scan; each answer maps an IPv4
// address to the instance and host names it advertises.
var mdnsServiceTypes = []string{
	"_workstation._tcp",
	"_device-info._tcp",
	"_http._tcp",
	"_ssh._tcp",
	"_smb._tcp",
	"_afpovertcp._tcp",
	"_ipp._tcp",
	"_printer._tcp",
	"_airplay._tcp",
	"_googlecast._tcp",
}

// mdnsBrowser is the part of *zeroconf.Resolver the browse loop uses.
type mdnsBrowser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

var newMDNSBrowser = func() (mdnsBrowser, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return resolver, nil
}

func lookupHostnames(ctx context.Context, addr scan.Address) []string {
	names, err := net.DefaultResolver.LookupAddr(ctx, addr.String())
	if err != nil {
		// PTR records are routinely missing on home networks
		return nil
	}
	return uniqueStrings(names)
}

// browseMDNS collects advertised names keyed by IPv4 address until ctx ends.
// Each service type gets its own resolver: a resolver's connections hand
// every datagram to a single reader, so browses sharing one would steal each
// other's answers.
func browseMDNS(ctx context.Context) map[string][]string {
	var mu sync.Mutex
	found := make(map[string][]string)
	record := func(entry *zeroconf.ServiceEntry) {
		var names []string
		if entry.Instance != "" {
			names = append(names, entry.Instance)
		}
		if hostname := strings.TrimSuffix(entry.HostName, "."); hostname != "" {
			names = append(names, hostname)
		}
		if len(names) == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, ip := range entry.AddrIPv4 {
			key := ip.String()
			found[key] = uniqueStrings(append(found[key], names...))
		}
	}

	var wg sync.WaitGroup
	for _, serviceType := range mdnsServiceTypes {
		if ctx.Err() != nil {
			break
		}
		browser, err := newMDNSBrowser()
		if err != nil {
			continue
		}
		// Browse closes entries once ctx is done, including after an error.
		entries := make(chan *zeroconf.ServiceEntry, 10)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range entries {
				record(entry)
			}
		}()
		_ = browser.Browse(ctx, serviceType, "local.", entries)
	}

	<-ctx.Done()
	wg.Wait()
	return found
}
