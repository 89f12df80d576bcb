package resolve

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/endobit/oui"
	"go.uber.org/zap"

	"netsweep/internal/scan"
)

// neighbourTablePath is the Linux ARP cache; tests point it elsewhere.
var neighbourTablePath = "/proc/net/arp"

// unknownVendor marks a MAC whose prefix is not registered.
const unknownVendor = "Unknown"

// neighbourTable maps addresses to the hardware addresses the kernel learned.
// Probing the host moments earlier is what populates it.
type neighbourTable map[scan.Address]string

// readNeighbourTable parses the /proc/net/arp layout:
// address, hw type, flags, hw address, mask, device.
func readNeighbourTable(path string) (neighbourTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open neighbour table: %w", err)
	}
	defer f.Close()

	table := make(neighbourTable)
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		addr, err := scan.ParseAddress(fields[0])
		if err != nil {
			continue
		}
		if mac := normaliseMAC(fields[3]); mac != "" {
			table[addr] = mac
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read neighbour table: %w", err)
	}
	return table, nil
}

// loadNeighbourTable returns an empty table on systems without /proc.
func (r *Resolver) loadNeighbourTable() neighbourTable {
	table, err := readNeighbourTable(neighbourTablePath)
	if err != nil {
		if runtime.GOOS == "linux" {
			r.logger.Debug("neighbour table unavailable", zap.Error(err))
		}
		return neighbourTable{}
	}
	return table
}

// arpCommand asks the platform arp tool for one host. Linux is served by the
// neighbour table alone.
func arpCommand(ctx context.Context, addr scan.Address) string {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		return ""
	case "windows":
		cmd = exec.CommandContext(ctx, "arp", "-a", addr.String())
	default:
		cmd = exec.CommandContext(ctx, "arp", "-n", addr.String())
	}
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return normaliseMAC(macLinePattern.FindString(string(output)))
}

// vendorFor looks up the registered owner of the MAC's OUI.
func vendorFor(mac string) string {
	if mac == "" {
		return ""
	}
	if vendor := oui.Vendor(strings.ToLower(mac)); vendor != "" {
		return vendor
	}
	return unknownVendor
}
