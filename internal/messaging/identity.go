package messaging

import (
	"regexp"
	"strings"
)

var ethAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ResolveIdentifiers returns the wallet addresses a participant carries,
// filtered to the Ethereum identifier kind, trimmed, with empty or
// malformed entries dropped. Pure; no normalization of case is applied so
// callers decide how to compare.
//
// A participant that resolves to zero identifiers is a hard-stop condition
// for authorization: the caller must fail closed rather than skip the
// member, since skipping would let an unevaluated identity through.
func ResolveIdentifiers(member Participant) []string {
	if len(member.Identifiers) == 0 {
		return nil
	}
	out := make([]string, 0, len(member.Identifiers))
	for _, id := range member.Identifiers {
		if id.Kind != IdentifierEthereum {
			continue
		}
		value := strings.TrimSpace(id.Value)
		if value == "" || !ethAddressPattern.MatchString(value) {
			continue
		}
		out = append(out, value)
	}
	return out
}
