package messaging

import "testing"

func TestResolveIdentifiersFiltersToEthereum(t *testing.T) {
	t.Parallel()

	member := Participant{
		InboxID: "inbox-1",
		Identifiers: []Identifier{
			{Kind: IdentifierEthereum, Value: "0xABCDEF0123456789abcdef0123456789ABCDEF01"},
			{Kind: "passkey", Value: "AQIDBA"},
			{Kind: IdentifierEthereum, Value: "  0x00000000000000000000000000000000000000ff  "},
		},
	}

	got := ResolveIdentifiers(member)
	if len(got) != 2 {
		t.Fatalf("expected 2 identifiers, got %v", got)
	}
	if got[0] != "0xABCDEF0123456789abcdef0123456789ABCDEF01" {
		t.Fatalf("unexpected first identifier: %s", got[0])
	}
	if got[1] != "0x00000000000000000000000000000000000000ff" {
		t.Fatalf("expected trimmed identifier, got %q", got[1])
	}
}

func TestResolveIdentifiersDropsMalformedEntries(t *testing.T) {
	t.Parallel()

	member := Participant{
		Identifiers: []Identifier{
			{Kind: IdentifierEthereum, Value: ""},
			{Kind: IdentifierEthereum, Value: "0x123"},
			{Kind: IdentifierEthereum, Value: "not-an-address"},
		},
	}
	if got := ResolveIdentifiers(member); len(got) != 0 {
		t.Fatalf("expected no identifiers, got %v", got)
	}
}

func TestResolveIdentifiersEmptyParticipant(t *testing.T) {
	t.Parallel()

	if got := ResolveIdentifiers(Participant{InboxID: "inbox-1"}); got != nil {
		t.Fatalf("expected nil for participant without identifiers, got %v", got)
	}
}
