package resolver

import (
	"testing"

	"github.com/miekg/dns"
)

func withOPT(req *dns.Msg, size uint16, do bool) {
	opt := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
	opt.SetUDPSize(size)
	if do {
		opt.SetDo()
	}
	req.Extra = append(req.Extra, opt)
}

func TestNegotiateEDNS0_NoOPTInRequest(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	resp := new(dns.Msg)
	resp.SetReply(req)

	negotiateEDNS0(req, resp)

	if opt := resp.IsEdns0(); opt != nil {
		t.Error("expected no EDNS0 in response when request had none")
	}
}

func TestNegotiateEDNS0_EchoesBufferSizeAndDOBit(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	withOPT(req, 2048, true)
	resp := new(dns.Msg)
	resp.SetReply(req)

	negotiateEDNS0(req, resp)

	opt := resp.IsEdns0()
	if opt == nil {
		t.Fatal("expected EDNS0 in response")
	}
	if opt.UDPSize() != 2048 {
		t.Errorf("expected buffer size 2048, got %d", opt.UDPSize())
	}
	if !opt.Do() {
		t.Error("expected DNSSEC OK bit to be preserved")
	}
}

func TestNegotiateEDNS0_DoesNotSetDOWhenAbsent(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	withOPT(req, 4096, false)
	resp := new(dns.Msg)
	resp.SetReply(req)

	negotiateEDNS0(req, resp)

	opt := resp.IsEdns0()
	if opt == nil {
		t.Fatal("expected EDNS0 in response")
	}
	if opt.Do() {
		t.Error("expected DNSSEC OK bit to stay unset")
	}
}

func TestNegotiateEDNS0_DoesNotOverwriteExistingOPT(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	withOPT(req, 4096, false)
	resp := new(dns.Msg)
	resp.SetReply(req)
	withOPT(resp, 1024, false)

	negotiateEDNS0(req, resp)

	if len(resp.Extra) != 1 {
		t.Fatalf("expected exactly one OPT record, got %d", len(resp.Extra))
	}
}

func TestNegotiateEDNS0_BufferSizeClamping(t *testing.T) {
	cases := []struct {
		name     string
		reqSize  uint16
		expected uint16
	}{
		{"zero uses default", 0, ednsBufferSize},
		{"below minimum clamps up", 256, ednsMinBufferSize},
		{"above maximum clamps down", 65535, ednsBufferSize},
		{"in range passes through", 1024, 1024},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := new(dns.Msg)
			req.SetQuestion("example.com.", dns.TypeA)
			withOPT(req, tc.reqSize, false)
			resp := new(dns.Msg)
			resp.SetReply(req)

			negotiateEDNS0(req, resp)

			opt := resp.IsEdns0()
			if opt == nil {
				t.Fatal("expected EDNS0 in response")
			}
			if opt.UDPSize() != tc.expected {
				t.Errorf("expected buffer size %d, got %d", tc.expected, opt.UDPSize())
			}
		})
	}
}
