// Package webhook is the authenticated HTTP ingress for catalog backend
// completion callbacks: an IP and shared-secret gate in front of payload
// classification and requester correlation.
package webhook

import (
	"fmt"
	"net/netip"
	"strings"
)

// Allowlist matches caller IPs against exact addresses and CIDR blocks.
// IPv4-mapped-IPv6 forms compare equal to their IPv4 counterpart in both
// directions.
type Allowlist struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// ParseAllowlist builds an allowlist from literal IPs and CIDR entries.
func ParseAllowlist(entries []string) (*Allowlist, error) {
	a := &Allowlist{addrs: map[netip.Addr]struct{}{}}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			addr, bits := prefix.Addr(), prefix.Bits()
			// A 4-in-6 block like ::ffff:192.168.0.0/112 is really an IPv4
			// block; rebase it so it matches unmapped callers.
			if addr.Is4In6() && bits >= 96 {
				addr, bits = addr.Unmap(), bits-96
			}
			a.prefixes = append(a.prefixes, netip.PrefixFrom(addr, bits).Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q: %w", entry, err)
		}
		a.addrs[addr.Unmap()] = struct{}{}
	}
	return a, nil
}

// Contains reports whether the address matches any entry. The address is
// unmapped before comparison so ::ffff:a.b.c.d and a.b.c.d are
// interchangeable.
func (a *Allowlist) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	if _, ok := a.addrs[addr]; ok {
		return true
	}
	for _, prefix := range a.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Empty reports whether the allowlist has no entries.
func (a *Allowlist) Empty() bool {
	return len(a.addrs) == 0 && len(a.prefixes) == 0
}
