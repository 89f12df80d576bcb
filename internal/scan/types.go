package scan

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultPorts is the TCP port set probed on every host.
var DefaultPorts = []int{21, 22, 80, 135, 445, 3389, 8080, 25565, 25566, 60000}

const (
	// DefaultTimeout bounds every individual connect or receive.
	DefaultTimeout = 3 * time.Second
	// DefaultConcurrency caps the number of hosts probed at once.
	DefaultConcurrency = 300
)

// Config describes the parameters of a scan run.
type Config struct {
	Ports        []int         `json:"ports"`
	Timeout      time.Duration `json:"timeout"`
	Concurrency  int           `json:"concurrency"`
	UDP          bool          `json:"udp"`
	ICMP         bool          `json:"icmp"`
	ExcludeEdges bool          `json:"excludeEdges"`
}

// DefaultConfig returns the baseline scan parameters.
func DefaultConfig() Config {
	return Config{
		Ports:       append([]int(nil), DefaultPorts...),
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		UDP:         true,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if len(c.Ports) == 0 && !c.UDP && !c.ICMP {
		return errors.New("at least one probe method is required")
	}
	for _, port := range c.Ports {
		if port < 1 || port > 65535 {
			return errors.New("ports must be between 1 and 65535")
		}
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be greater than 0")
	}
	return nil
}

// Protocol names used in method labels.
const (
	ProtocolTCP  = "TCP"
	ProtocolUDP  = "UDP"
	ProtocolICMP = "ICMP"
)

// Method is one way a host was detected.
type Method struct {
	Protocol string
	Port     int
}

func (m Method) String() string {
	if m.Port == 0 {
		return m.Protocol
	}
	return m.Protocol + ":" + strconv.Itoa(m.Port)
}

// MarshalText renders labels such as "TCP:80".
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses labels such as "UDP:137".
func (m *Method) UnmarshalText(text []byte) error {
	proto, port, hasPort := strings.Cut(string(text), ":")
	m.Protocol = proto
	m.Port = 0
	if !hasPort {
		return nil
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return errors.New("invalid method label " + strconv.Quote(string(text)))
	}
	m.Port = p
	return nil
}

// Outcome is what a prober learned about one address.
type Outcome struct {
	Address      Address  `json:"address"`
	Methods      []Method `json:"methods"`
	NetBIOSNames []string `json:"netbiosNames,omitempty"`
}

// Live reports whether any method detected the host.
func (o Outcome) Live() bool {
	return len(o.Methods) > 0
}

// MethodLabels returns the method labels in detection order.
func (o Outcome) MethodLabels() []string {
	labels := make([]string, 0, len(o.Methods))
	for _, m := range o.Methods {
		labels = append(labels, m.String())
	}
	return labels
}

// Has reports whether the outcome includes the given method.
func (o Outcome) Has(protocol string, port int) bool {
	for _, m := range o.Methods {
		if m.Protocol == protocol && m.Port == port {
			return true
		}
	}
	return false
}

// ScanStatus represents the lifecycle state of a scan.
type ScanStatus string

const (
	StatusIdle      ScanStatus = "idle"
	StatusRunning   ScanStatus = "running"
	StatusCancelled ScanStatus = "cancelled"
	StatusCompleted ScanStatus = "completed"
)

// Progress contains a summary of the current scan progress.
type Progress struct {
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Active    int        `json:"active"`
	Live      int        `json:"live"`
	Status    ScanStatus `json:"status"`
}

// Snapshot is the final view of a scan: its parameters, counters and the
// live hosts in ascending address order.
type Snapshot struct {
	ID       string    `json:"id"`
	Subnet   string    `json:"subnet,omitempty"`
	Config   Config    `json:"config"`
	Progress Progress  `json:"progress"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Hosts    []Outcome `json:"hosts"`
}

var (
	// ErrScanInProgress indicates a scan is already running.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrInvalidPrefix is returned for prefix lengths outside 0-32.
	ErrInvalidPrefix = errors.New("invalid prefix length")
	// ErrInvalidSubnet is returned for unparsable subnet strings.
	ErrInvalidSubnet = errors.New("invalid subnet")
	// ErrInvalidAddress is returned for unparsable IPv4 addresses.
	ErrInvalidAddress = errors.New("invalid address")
)
