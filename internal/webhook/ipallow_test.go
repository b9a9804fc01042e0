package webhook

import (
	"net/netip"
	"testing"
)

func TestAllowlistExactMatch(t *testing.T) {
	t.Parallel()

	a, err := ParseAllowlist([]string{"192.168.4.3"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !a.Contains(netip.MustParseAddr("192.168.4.3")) {
		t.Fatal("expected exact match")
	}
	if a.Contains(netip.MustParseAddr("192.168.4.4")) {
		t.Fatal("unexpected match")
	}
}

func TestAllowlistMappedFormsAreInterchangeable(t *testing.T) {
	t.Parallel()

	plain, err := ParseAllowlist([]string{"192.168.4.3"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !plain.Contains(netip.MustParseAddr("::ffff:192.168.4.3")) {
		t.Fatal("mapped caller should match plain entry")
	}

	mapped, err := ParseAllowlist([]string{"::ffff:192.168.4.3"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !mapped.Contains(netip.MustParseAddr("192.168.4.3")) {
		t.Fatal("plain caller should match mapped entry")
	}
}

func TestAllowlistCIDR(t *testing.T) {
	t.Parallel()

	a, err := ParseAllowlist([]string{"172.16.0.0/12"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !a.Contains(netip.MustParseAddr("172.20.1.5")) {
		t.Fatal("expected address inside block to match")
	}
	if !a.Contains(netip.MustParseAddr("::ffff:172.20.1.5")) {
		t.Fatal("expected mapped address inside block to match")
	}
	if a.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Fatal("10.0.0.1 must not match 172.16.0.0/12")
	}
}

func TestAllowlistMappedCIDRIsRebased(t *testing.T) {
	t.Parallel()

	a, err := ParseAllowlist([]string{"::ffff:192.168.0.0/112"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !a.Contains(netip.MustParseAddr("192.168.4.3")) {
		t.Fatal("expected plain address to match rebased mapped block")
	}
}

func TestAllowlistRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseAllowlist([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for invalid IP")
	}
	if _, err := ParseAllowlist([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}

func TestAllowlistSkipsBlankEntries(t *testing.T) {
	t.Parallel()

	a, err := ParseAllowlist([]string{" ", "", "10.0.0.1"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.Empty() {
		t.Fatal("expected non-empty allowlist")
	}
	if !a.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Fatal("expected surviving entry to match")
	}
}
