// Package report renders scan results: the console table, the progress bar
// and the machine-readable exports.
package report

import (
	"strings"
	"time"

	"netsweep/internal/resolve"
	"netsweep/internal/scan"
)

// StatusOnline is the status label shown for every reported host.
const StatusOnline = "ONLINE"

// NoLiveHostsMessage is printed instead of an empty table.
const NoLiveHostsMessage = "No live hosts detected."

// Report pairs a finished scan with optional enrichment.
type Report struct {
	Snapshot scan.Snapshot
	// Details is nil when enrichment was not run.
	Details map[scan.Address]resolve.Details
}

// Enriched reports whether enrichment columns should be shown.
func (r Report) Enriched() bool {
	return r.Details != nil
}

// Document is the exported form of a Report.
type Document struct {
	ID        string    `json:"id" yaml:"id" plist:"id"`
	Subnet    string    `json:"subnet" yaml:"subnet" plist:"subnet"`
	Status    string    `json:"status" yaml:"status" plist:"status"`
	Started   time.Time `json:"started" yaml:"started" plist:"started"`
	Finished  time.Time `json:"finished" yaml:"finished" plist:"finished"`
	Scanned   int       `json:"scanned" yaml:"scanned" plist:"scanned"`
	Total     int       `json:"total" yaml:"total" plist:"total"`
	LiveCount int       `json:"liveCount" yaml:"liveCount" plist:"liveCount"`
	Hosts     []Record  `json:"hosts" yaml:"hosts" plist:"hosts"`
}

// Record is one live host.
type Record struct {
	Address      string   `json:"address" yaml:"address" plist:"address"`
	Status       string   `json:"status" yaml:"status" plist:"status"`
	Methods      []string `json:"methods" yaml:"methods" plist:"methods"`
	NetBIOSNames []string `json:"netbiosNames,omitempty" yaml:"netbiosNames,omitempty" plist:"netbiosNames,omitempty"`
	DeviceName   string   `json:"deviceName,omitempty" yaml:"deviceName,omitempty" plist:"deviceName,omitempty"`
	Hostnames    []string `json:"hostnames,omitempty" yaml:"hostnames,omitempty" plist:"hostnames,omitempty"`
	MDNSNames    []string `json:"mdnsNames,omitempty" yaml:"mdnsNames,omitempty" plist:"mdnsNames,omitempty"`
	MacAddress   string   `json:"macAddress,omitempty" yaml:"macAddress,omitempty" plist:"macAddress,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty" plist:"manufacturer,omitempty"`
	SMBComputer  string   `json:"smbComputerName,omitempty" yaml:"smbComputerName,omitempty" plist:"smbComputerName,omitempty"`
	SMBDomain    string   `json:"smbDomain,omitempty" yaml:"smbDomain,omitempty" plist:"smbDomain,omitempty"`
}

// MethodList joins the method labels for display.
func (r Record) MethodList() string {
	return strings.Join(r.Methods, ", ")
}

// Document flattens the report into its exported form. Hosts keep the
// snapshot's ascending address order.
func (r Report) Document() Document {
	snap := r.Snapshot
	doc := Document{
		ID:        snap.ID,
		Subnet:    snap.Subnet,
		Status:    string(snap.Progress.Status),
		Started:   snap.Started,
		Finished:  snap.Finished,
		Scanned:   snap.Progress.Completed,
		Total:     snap.Progress.Total,
		LiveCount: len(snap.Hosts),
		Hosts:     make([]Record, 0, len(snap.Hosts)),
	}
	for _, host := range snap.Hosts {
		doc.Hosts = append(doc.Hosts, r.record(host))
	}
	return doc
}

func (r Report) record(host scan.Outcome) Record {
	rec := Record{
		Address:      host.Address.String(),
		Status:       StatusOnline,
		Methods:      host.MethodLabels(),
		NetBIOSNames: host.NetBIOSNames,
	}
	d, ok := r.Details[host.Address]
	if !ok {
		return rec
	}
	rec.DeviceName = d.DeviceName
	rec.Hostnames = d.Hostnames
	rec.MDNSNames = d.MDNSNames
	rec.MacAddress = d.MacAddress
	rec.Manufacturer = d.Manufacturer
	if len(d.NetBIOSNames) > 0 {
		rec.NetBIOSNames = d.NetBIOSNames
	}
	if d.SMB != nil {
		rec.SMBComputer = d.SMB.ComputerName
		rec.SMBDomain = d.SMB.Domain
	}
	return rec
}
