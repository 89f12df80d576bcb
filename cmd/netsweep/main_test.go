package main

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsweep/internal/config"
	"netsweep/internal/report"
	"netsweep/internal/scan"
)

func openPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRunHelpShowsUsage(t *testing.T) {
	stdout, _, err := runCLI(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "netsweep")
	assert.Contains(t, stdout, "--concurrency")
	assert.Contains(t, stdout, "interfaces")
}

func TestRunUnknownCommand(t *testing.T) {
	_, _, err := runCLI(t, "unknown")
	assert.Error(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	_, _, err := runCLI(t, "--subnet", "127.0.0.1/32", "--concurrency", "0")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, _, err = runCLI(t, "--subnet", "127.0.0.1/32", "--format", "xml")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunLoopbackScan(t *testing.T) {
	port := openPort(t)
	stdout, _, err := runCLI(t,
		"--subnet", "127.0.0.1/32",
		"--ports", strconv.Itoa(port),
		"--udp=false",
		"--progress", "never",
		"--format", "json",
	)
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "127.0.0.1/32", doc.Subnet)
	assert.Equal(t, string(scan.StatusCompleted), doc.Status)
	require.Len(t, doc.Hosts, 1)
	assert.Equal(t, "127.0.0.1", doc.Hosts[0].Address)
	assert.Equal(t, []string{"TCP:" + strconv.Itoa(port)}, doc.Hosts[0].Methods)
}

func TestRunHostAddressSubnet(t *testing.T) {
	port := openPort(t)
	stdout, _, err := runCLI(t,
		"--subnet", "127.0.0.1/30",
		"--ports", strconv.Itoa(port),
		"--udp=false",
		"--timeout", "500ms",
		"--progress", "never",
		"--format", "json",
	)
	require.NoError(t, err)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "127.0.0.0/30", doc.Subnet)
	assert.Equal(t, 4, doc.Total)
	assert.Equal(t, 4, doc.Scanned)
	require.NotEmpty(t, doc.Hosts)
	assert.Contains(t, hostAddresses(doc), "127.0.0.1")
}

func hostAddresses(doc report.Document) []string {
	out := make([]string, 0, len(doc.Hosts))
	for _, rec := range doc.Hosts {
		out = append(out, rec.Address)
	}
	return out
}

func TestRunLogsToInjectedStderr(t *testing.T) {
	port := openPort(t)
	stdout, stderr, err := runCLI(t,
		"--subnet", "127.0.0.1/32",
		"--ports", strconv.Itoa(port),
		"--udp=false",
		"--progress", "never",
		"--log-level", "info",
		"--log-format", "json",
	)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "scan finished")
	assert.Contains(t, stderr, `"msg":"scan finished"`)
	assert.Contains(t, stderr, `"component":"manager"`)
}

func TestRunNoLiveHosts(t *testing.T) {
	stdout, _, err := runCLI(t,
		"--subnet", "127.0.0.1",
		"--ports", strconv.Itoa(closedPort(t)),
		"--udp=false",
		"--progress", "never",
	)
	require.NoError(t, err)
	assert.Equal(t, report.NoLiveHostsMessage+"\n", stdout)
}

func TestRunWritesOutputFileAndMetrics(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "hosts.csv")
	prom := filepath.Join(dir, "netsweep.prom")
	port := openPort(t)

	t.Setenv("NETSWEEP_SCAN_UDP", "false")
	stdout, _, err := runCLI(t,
		"--subnet", "127.0.0.1/32",
		"--ports", strconv.Itoa(port),
		"--progress", "never",
		"--format", "csv",
		"--output", out,
		"--metrics-textfile", prom,
	)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "127.0.0.1,ONLINE,TCP:"+strconv.Itoa(port))

	metrics, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "netsweep_scan_live_hosts_total 1")
}

func TestRunConfigFile(t *testing.T) {
	port := openPort(t)
	path := filepath.Join(t.TempDir(), "netsweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"scan:\n  subnet: 127.0.0.1/32\n  udp: false\n  ports: ["+strconv.Itoa(port)+"]\noutput:\n  progress: never\n  format: yaml\n",
	), 0o600))

	stdout, _, err := runCLI(t, "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "address: 127.0.0.1")
}
