package scan

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	netbiosPort = 137

	// NetBIOS protocol constants
	netbiosHeaderSize    = 12
	netbiosNameEntrySize = 18
	netbiosNameFieldSize = 15
	netbiosRRFixedSize   = 10 // type, class, ttl, rdlength

	netbiosFlagGroup  = 0x8000
	netbiosFlagActive = 0x0400
)

// nbstatQuery is a node status request for the wildcard name "*".
var nbstatQuery = [50]byte{
	0x80, 0x00, // Transaction ID
	0x00, 0x00, // Flags: standard query
	0x00, 0x01, // Questions: 1
	0x00, 0x00, // Answer RRs: 0
	0x00, 0x00, // Authority RRs: 0
	0x00, 0x00, // Additional RRs: 0
	// Encoded "*" padded with NULs
	0x20, 0x43, 0x4b, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41, 0x41,
	0x41, 0x00,
	0x00, 0x21, // Type: NBSTAT
	0x00, 0x01, // Class: IN
}

// probeNetBIOS sends the node status query to UDP/137 and waits for any
// datagram. A reply counts regardless of whether it parses.
func (p *Prober) probeNetBIOS(ctx context.Context, host string) ([]byte, bool) {
	conn, err := p.dialer.DialContext(ctx, "udp", net.JoinHostPort(host, strconv.Itoa(netbiosPort)))
	if err != nil {
		p.logger.Debug("netbios socket unavailable", zap.String("host", host), zap.Error(err))
		return nil, false
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(nbstatQuery[:]); err != nil {
		p.logger.Debug("netbios query not sent", zap.String("host", host), zap.Error(err))
		return nil, false
	}

	response := make([]byte, 1024)
	n, err := conn.Read(response)
	if err != nil {
		return nil, false
	}
	return response[:n], true
}

// parseNetBIOSResponse extracts active unique workstation and server names
// from a node status response. Anything malformed yields nil.
func parseNetBIOSResponse(data []byte) []string {
	if len(data) <= netbiosHeaderSize {
		return nil
	}
	// QR bit must mark a response
	if data[2]&0x80 == 0 {
		return nil
	}

	offset, ok := skipNetBIOSName(data, netbiosHeaderSize)
	if !ok || len(data) < offset+netbiosRRFixedSize+1 {
		return nil
	}
	rdLength := int(data[offset+8])<<8 | int(data[offset+9])
	offset += netbiosRRFixedSize
	end := offset + rdLength
	if end > len(data) {
		end = len(data)
	}

	numNames := int(data[offset])
	offset++

	nameSet := make(map[string]struct{})
	for i := 0; i < numNames && offset+netbiosNameEntrySize <= end; i++ {
		name := strings.TrimSpace(strings.TrimRight(string(data[offset:offset+netbiosNameFieldSize]), "\x00"))
		nameType := data[offset+netbiosNameFieldSize]
		flags := uint16(data[offset+netbiosNameFieldSize+1])<<8 | uint16(data[offset+netbiosNameFieldSize+2])
		offset += netbiosNameEntrySize

		if name == "" || flags&netbiosFlagGroup != 0 || flags&netbiosFlagActive == 0 {
			continue
		}
		if nameType == 0x00 || nameType == 0x20 {
			nameSet[name] = struct{}{}
		}
	}

	if len(nameSet) == 0 {
		return nil
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// skipNetBIOSName walks an encoded resource name starting at offset and
// returns the offset just past it.
func skipNetBIOSName(data []byte, offset int) (int, bool) {
	for offset < len(data) {
		length := int(data[offset])
		switch {
		case length == 0:
			return offset + 1, true
		case length&0xc0 == 0xc0:
			// compression pointer
			return offset + 2, offset+2 <= len(data)
		default:
			offset += length + 1
		}
	}
	return 0, false
}
