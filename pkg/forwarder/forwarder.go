// Package forwarder implements the Upstream Forwarder: ordered failover
// across configured upstream resolvers with a per-attempt timeout and an
// overall deadline, UDP first with a TCP retry on truncation.
package forwarder

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"

	"github.com/miekg/dns"
)

const (
	// DefaultAttemptTimeout is T_u, the per-upstream-attempt timeout.
	DefaultAttemptTimeout = 2 * time.Second
	// DefaultTotalTimeout is T_total, the overall deadline across all attempts.
	DefaultTotalTimeout = 5 * time.Second
)

// Forwarder forwards a parsed query to the configured upstream resolvers, in
// list order, per spec.md §4.5.
type Forwarder struct {
	upstreams      []string
	attemptTimeout time.Duration
	totalTimeout   time.Duration
	logger         *logging.Logger

	udpPool sync.Pool
}

// New creates a Forwarder from the server's configured upstream list.
// Addresses missing a port are given the default DNS port.
func New(cfg *config.Config, logger *logging.Logger) *Forwarder {
	upstreamSrc := cfg.Server.UpstreamDNS
	if len(upstreamSrc) == 0 {
		upstreamSrc = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}

	upstreams := make([]string, len(upstreamSrc))
	for i, u := range upstreamSrc {
		if _, _, err := net.SplitHostPort(u); err != nil {
			upstreams[i] = net.JoinHostPort(u, "53")
		} else {
			upstreams[i] = u
		}
	}

	f := &Forwarder{
		upstreams:      upstreams,
		attemptTimeout: DefaultAttemptTimeout,
		totalTimeout:   DefaultTotalTimeout,
		logger:         logger,
	}
	f.udpPool.New = func() any {
		return &dns.Client{Net: "udp", Timeout: f.attemptTimeout}
	}

	if logger != nil {
		logger.Info("forwarder initialized", "upstreams", upstreams,
			"attempt_timeout", f.attemptTimeout, "total_timeout", f.totalTimeout)
	}
	return f
}

// SetTimeouts overrides T_u and T_total (zero values leave the default).
func (f *Forwarder) SetTimeouts(attempt, total time.Duration) {
	if attempt > 0 {
		f.attemptTimeout = attempt
	}
	if total > 0 {
		f.totalTimeout = total
	}
}

// Upstreams returns the configured upstream list, in failover order.
func (f *Forwarder) Upstreams() []string {
	return f.upstreams
}

// Forward tries each configured upstream in order, bounded overall by
// T_total. Each attempt goes out over UDP first; a truncated response (TC
// bit set) is retried once over TCP against the same upstream before moving
// on. An upstream that answers SERVFAIL counts as a failed attempt, and the
// next upstream is tried. On success the upstream's response is returned
// unmodified (its transaction ID already matches r's, since r is forwarded
// byte-for-byte).
// If every upstream fails, Forward returns a synthesized SERVFAIL with r's
// ID and question section echoed, and a nil error — the caller writes
// whatever Forward returns.
func (f *Forwarder) Forward(ctx context.Context, r *dns.Msg) (*dns.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, f.totalTimeout)
	defer cancel()

	for _, upstream := range f.upstreams {
		resp, err := f.attempt(ctx, upstream, r)
		if err != nil {
			f.warn(upstream, r, err)
			continue
		}
		return resp, nil
	}

	return servfail(r), nil
}

// ForwardWithUpstreams is like Forward but against an explicit upstream
// list instead of the configured one.
func (f *Forwarder) ForwardWithUpstreams(ctx context.Context, r *dns.Msg, upstreams []string) (*dns.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, f.totalTimeout)
	defer cancel()

	for _, upstream := range upstreams {
		resp, err := f.attempt(ctx, upstream, r)
		if err != nil {
			f.warn(upstream, r, err)
			continue
		}
		return resp, nil
	}

	return servfail(r), nil
}

func (f *Forwarder) attempt(ctx context.Context, upstream string, r *dns.Msg) (*dns.Msg, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	client := f.udpPool.Get().(*dns.Client)
	defer f.udpPool.Put(client)

	resp, _, err := client.ExchangeContext(attemptCtx, r, upstream)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errNilResponse{upstream}
	}

	if resp.Truncated || exceedsEDNSBuffer(r, resp) {
		tcpClient := &dns.Client{Net: "tcp", Timeout: f.attemptTimeout}
		tcpResp, _, err := tcpClient.ExchangeContext(attemptCtx, r, upstream)
		if err != nil {
			return nil, err
		}
		if tcpResp != nil {
			resp = tcpResp
		}
	}

	if resp.Rcode == dns.RcodeServerFailure {
		return nil, errServerFailure{upstream}
	}
	return resp, nil
}

func exceedsEDNSBuffer(req, resp *dns.Msg) bool {
	opt := req.IsEdns0()
	if opt == nil {
		return false
	}
	return resp.Len() > int(opt.UDPSize())
}

func servfail(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetRcode(r, dns.RcodeServerFailure)
	m.Question = r.Question
	return m
}

func (f *Forwarder) warn(upstream string, r *dns.Msg, err error) {
	if f.logger == nil {
		return
	}
	var qname string
	if len(r.Question) > 0 {
		qname = r.Question[0].Name
	}
	f.logger.Warn("query.forward_error", "qname", qname, "upstream", upstream, "reason", err.Error())
}

type errNilResponse struct{ upstream string }

func (e errNilResponse) Error() string { return "nil response from " + e.upstream }

type errServerFailure struct{ upstream string }

func (e errServerFailure) Error() string { return "SERVFAIL from " + e.upstream }
