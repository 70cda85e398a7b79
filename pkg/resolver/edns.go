// Package resolver implements the Request Handler and server loop: query
// classification against a blocklist snapshot, EDNS0 negotiation, and
// upstream forwarding.
package resolver

import "github.com/miekg/dns"

// EDNS0 buffer sizes advertised on synthesized replies. spec.md's wire
// protocol section honors the sender's EDNS buffer size for UDP truncation
// decisions; RFC 6891 recommends 4096 as a safe upper bound.
const (
	ednsBufferSize    = 4096
	ednsMinBufferSize = 512
)

// negotiateEDNS0 echoes an OPT record onto resp when req carried one,
// preserving the DNSSEC OK bit and clamping our own advertised UDP payload
// size into [ednsMinBufferSize, ednsBufferSize]. No-op if req has no OPT
// record or resp already carries one.
func negotiateEDNS0(req, resp *dns.Msg) {
	opt := req.IsEdns0()
	if opt == nil || resp.IsEdns0() != nil {
		return
	}

	size := opt.UDPSize()
	switch {
	case size == 0:
		size = ednsBufferSize
	case size < ednsMinBufferSize:
		size = ednsMinBufferSize
	case size > ednsBufferSize:
		size = ednsBufferSize
	}

	reply := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
	reply.SetUDPSize(size)
	if opt.Do() {
		reply.SetDo()
	}
	resp.Extra = append(resp.Extra, reply)
}
