package scan

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Dialer opens probe connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// HostProber determines whether one address is live and how.
type HostProber interface {
	Probe(ctx context.Context, addr Address) Outcome
}

// PingFunc sends a single ICMP echo and reports whether a reply arrived.
type PingFunc func(ctx context.Context, host string, timeout time.Duration) bool

// Prober runs the TCP port checks, the NetBIOS query and the optional ICMP
// echo against a single host. Failures of individual methods are never
// reported as errors; they only leave the method out of the outcome.
type Prober struct {
	ports   []int
	timeout time.Duration
	udp     bool
	icmp    bool
	dialer  Dialer
	ping    PingFunc
	logger  *zap.Logger
}

// ProberOption customises a Prober.
type ProberOption func(*Prober)

// WithDialer replaces the network dialer used for TCP and UDP probes.
func WithDialer(d Dialer) ProberOption {
	return func(p *Prober) {
		p.dialer = d
	}
}

// WithPinger replaces the ICMP echo implementation.
func WithPinger(fn PingFunc) ProberOption {
	return func(p *Prober) {
		p.ping = fn
	}
}

// NewProber builds a Prober from the scan configuration.
func NewProber(cfg Config, logger *zap.Logger, opts ...ProberOption) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Prober{
		ports:   append([]int(nil), cfg.Ports...),
		timeout: timeout,
		udp:     cfg.UDP,
		icmp:    cfg.ICMP,
		dialer:  &net.Dialer{},
		ping:    pingHost,
		logger:  logger.With(zap.String("component", "prober")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks every configured port in order, then the NetBIOS name
// service, then ICMP. Every method that answers is recorded.
func (p *Prober) Probe(ctx context.Context, addr Address) Outcome {
	host := addr.String()
	outcome := Outcome{Address: addr}

	for _, port := range p.ports {
		if ctx.Err() != nil {
			return outcome
		}
		if p.probeTCP(ctx, host, port) {
			outcome.Methods = append(outcome.Methods, Method{Protocol: ProtocolTCP, Port: port})
		}
	}

	if p.udp && ctx.Err() == nil {
		if reply, ok := p.probeNetBIOS(ctx, host); ok {
			outcome.Methods = append(outcome.Methods, Method{Protocol: ProtocolUDP, Port: netbiosPort})
			outcome.NetBIOSNames = parseNetBIOSResponse(reply)
		}
	}

	if p.icmp && p.ping != nil && ctx.Err() == nil {
		if p.ping(ctx, host, p.timeout) {
			outcome.Methods = append(outcome.Methods, Method{Protocol: ProtocolICMP})
		}
	}

	return outcome
}

func (p *Prober) probeTCP(ctx context.Context, host string, port int) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		p.logger.Debug("tcp probe failed", zap.String("host", host), zap.Int("port", port), zap.Error(err))
		return false
	}
	_ = conn.Close()
	return true
}
