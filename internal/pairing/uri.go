package pairing

import (
	"net/url"
	"strings"
)

// CleanURI strips non-essential query parameters from a wc: connection URI,
// keeping only relay-protocol and symKey. Some display surfaces (in-game
// browsers, short QR payloads) choke on long URIs; the two kept parameters
// are all a wallet needs to join the relay. Anything unexpected is returned
// unchanged rather than risking a broken pairing.
func CleanURI(raw string) string {
	if !strings.HasPrefix(raw, "wc:") {
		return raw
	}
	left, query, ok := strings.Cut(raw, "@2?")
	if !ok {
		return raw
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return raw
	}
	symKey := values.Get("symKey")
	if symKey == "" {
		return raw
	}
	relay := values.Get("relay-protocol")
	if relay == "" {
		relay = "irn"
	}
	return left + "@2?relay-protocol=" + relay + "&symKey=" + symKey
}
