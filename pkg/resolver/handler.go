package resolver

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/smolgroot/skypier-blackhole/pkg/blocklist"
	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/dnsname"
	"github.com/smolgroot/skypier-blackhole/pkg/forwarder"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"
	"github.com/smolgroot/skypier-blackhole/pkg/telemetry"

	"github.com/miekg/dns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// msgPool reduces per-query allocations of dns.Msg.
var msgPool = sync.Pool{
	New: func() interface{} {
		return new(dns.Msg)
	},
}

// Handler implements the Request Handler (spec.md §4.6): classify the query
// name against the current blocklist snapshot and either synthesize a
// blocked response or forward to upstream.
type Handler struct {
	Registry  *blocklist.Registry
	Forwarder *forwarder.Forwarder
	Policy    config.BlockedResponsePolicy
	LogBlocked bool
	Metrics   *telemetry.Metrics
	Logger    *logging.Logger
}

// NewHandler builds a Handler wired to a blocklist registry and forwarder.
func NewHandler(reg *blocklist.Registry, fwd *forwarder.Forwarder, policy config.BlockedResponsePolicy, logBlocked bool, metrics *telemetry.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		Registry:   reg,
		Forwarder:  fwd,
		Policy:     policy,
		LogBlocked: logBlocked,
		Metrics:    metrics,
		Logger:     logger,
	}
}

func (h *Handler) writeMsg(w dns.ResponseWriter, msg *dns.Msg) {
	if err := w.WriteMsg(msg); err != nil {
		_ = err
	}
}

// ServeDNS handles one query; Server adapts it to dns.Handler by supplying a
// background context. It normalizes the query name, classifies
// it against the current snapshot, and either answers directly (blocked) or
// forwards upstream (allowed).
func (h *Handler) ServeDNS(ctx context.Context, w dns.ResponseWriter, r *dns.Msg) {
	start := time.Now()
	clientIP := getClientIP(w)

	msg := msgPool.Get().(*dns.Msg)
	defer msgPool.Put(msg)
	*msg = dns.Msg{}
	msg.SetReply(r)
	msg.Authoritative = true
	msg.RecursionAvailable = true
	negotiateEDNS0(r, msg)

	if len(r.Question) != 1 {
		msg.SetRcode(r, dns.RcodeFormatError)
		h.writeMsg(w, msg)
		return
	}

	question := r.Question[0]
	rawName := question.Name
	qtypeLabel := dnsTypeLabel(question.Qtype)

	if h.Metrics != nil {
		h.Metrics.ActiveClients.Add(ctx, 1)
		defer h.Metrics.ActiveClients.Add(ctx, -1)
		h.Metrics.DNSQueriesTotal.Add(ctx, 1)
		h.Metrics.DNSQueriesByType.Add(ctx, 1, metric.WithAttributes(attribute.String("qtype", qtypeLabel)))
	}

	// A name that fails to normalize is answered with FORMERR and is never
	// classified or forwarded.
	name, err := dnsname.Normalize(rawName)
	if err != nil {
		msg.SetRcode(r, dns.RcodeFormatError)
		h.writeMsg(w, msg)
		return
	}
	snap := h.Registry.Current()
	classification := snap.Classify(name)

	if classification != blocklist.Allowed {
		h.serveBlocked(ctx, w, r, msg, rawName, qtypeLabel, classification)
		h.logQuery(start, rawName, clientIP, qtypeLabel, "blocked", "")
		return
	}

	h.forward(ctx, w, r, msg, rawName, qtypeLabel, start, clientIP)
}

func (h *Handler) serveBlocked(ctx context.Context, w dns.ResponseWriter, r, msg *dns.Msg, name, qtypeLabel string, classification blocklist.Classification) {
	// A synthesized blocked answer is not authoritative and did not consult
	// upstream, so neither bit applies regardless of policy.
	msg.Authoritative = false
	msg.RecursionAvailable = false

	switch h.Policy {
	case config.BlockedResponseNXDomain:
		msg.SetRcode(r, dns.RcodeNameError)
	case config.BlockedResponseZero:
		msg.SetRcode(r, dns.RcodeSuccess)
		addZeroAnswer(msg, r)
	default:
		msg.SetRcode(r, dns.RcodeRefused)
	}

	if h.Metrics != nil {
		h.Metrics.DNSBlockedQueries.Add(ctx, 1)
	}
	if h.LogBlocked && h.Logger != nil {
		reason := "exact"
		if classification == blocklist.BlockedWildcard {
			reason = "wildcard"
		}
		h.Logger.Info("query.blocked", "qname", name, "qtype", qtypeLabel, "source_ip", getClientIP(w), "match_kind", reason, "policy", string(h.Policy))
	}

	h.writeMsg(w, msg)
}

func (h *Handler) forward(ctx context.Context, w dns.ResponseWriter, r, msg *dns.Msg, name, qtypeLabel string, start time.Time, clientIP string) {
	if h.Forwarder == nil {
		msg.SetRcode(r, dns.RcodeServerFailure)
		h.writeMsg(w, msg)
		return
	}

	resp, err := h.Forwarder.Forward(ctx, r)
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.DNSForwardErrors.Add(ctx, 1)
		}
		msg.SetRcode(r, dns.RcodeServerFailure)
		h.writeMsg(w, msg)
		h.logQuery(start, name, clientIP, qtypeLabel, "forward_error", err.Error())
		return
	}

	if h.Metrics != nil {
		// Forward reports "every upstream failed" as a SERVFAIL reply with a
		// nil error, so that reply is what counts as a forward error.
		if resp.Rcode == dns.RcodeServerFailure {
			h.Metrics.DNSForwardErrors.Add(ctx, 1)
		}
		h.Metrics.DNSForwardedQueries.Add(ctx, 1)
		h.Metrics.DNSQueryDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}

	h.writeMsg(w, resp)
	h.logQuery(start, name, clientIP, qtypeLabel, "allowed", "")
}

func (h *Handler) logQuery(start time.Time, name, clientIP, qtypeLabel, outcome, reason string) {
	if h.Logger == nil {
		return
	}
	args := []any{"qname", name, "client", clientIP, "qtype", qtypeLabel, "duration_ms", time.Since(start).Milliseconds()}
	if reason != "" {
		args = append(args, "reason", reason)
	}
	switch outcome {
	case "forward_error":
		h.Logger.Warn("query.forward_error", args...)
	case "blocked":
		// query.blocked is logged in serveBlocked when LogBlocked is set; this
		// is the unconditional trace-level record of every blocked query.
		h.Logger.Trace("query.result", append(args, "outcome", outcome)...)
	default:
		h.Logger.Debug("query.allowed", args...)
	}
}

func addZeroAnswer(msg, r *dns.Msg) {
	if len(r.Question) == 0 {
		return
	}
	q := r.Question[0]
	switch q.Qtype {
	case dns.TypeA:
		msg.Answer = append(msg.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 0},
			A:   net.IPv4zero,
		})
	case dns.TypeAAAA:
		msg.Answer = append(msg.Answer, &dns.AAAA{
			Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 0},
			AAAA: net.IPv6zero,
		})
	}
}

func dnsTypeLabel(qtype uint16) string {
	if label := dns.TypeToString[qtype]; label != "" {
		return label
	}
	return "TYPE" + strconv.FormatUint(uint64(qtype), 10)
}

func getClientIP(w dns.ResponseWriter) string {
	if w.RemoteAddr() == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(w.RemoteAddr().String())
	if err != nil {
		return w.RemoteAddr().String()
	}
	return host
}
