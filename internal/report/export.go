package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"howett.net/plist"
)

// ErrUnknownFormat is returned for output formats Write does not know.
var ErrUnknownFormat = errors.New("unknown output format")

var csvHeader = []string{
	"address", "status", "methods", "device_name", "hostnames",
	"mac_address", "manufacturer", "netbios_names",
}

// Write renders r in the named format: table, json, csv, yaml or plist.
func Write(w io.Writer, format string, r Report) error {
	switch strings.ToLower(format) {
	case "", "table":
		return WriteTable(w, r)
	case "json":
		return WriteJSON(w, r)
	case "csv":
		return WriteCSV(w, r)
	case "yaml":
		return WriteYAML(w, r)
	case "plist":
		return WritePlist(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Document()); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteCSV writes one row per live host under a fixed header. Multi-valued
// fields are joined with ";".
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range r.Document().Hosts {
		row := []string{
			rec.Address,
			rec.Status,
			strings.Join(rec.Methods, ";"),
			rec.DeviceName,
			strings.Join(rec.Hostnames, ";"),
			rec.MacAddress,
			rec.Manufacturer,
			strings.Join(rec.NetBIOSNames, ";"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", rec.Address, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteYAML writes the document as YAML.
func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Document()); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// WritePlist writes the document as an XML property list.
func WritePlist(w io.Writer, r Report) error {
	enc := plist.NewEncoderForFormat(w, plist.XMLFormat)
	enc.Indent("  ")
	if err := enc.Encode(r.Document()); err != nil {
		return fmt.Errorf("encode plist: %w", err)
	}
	return nil
}
