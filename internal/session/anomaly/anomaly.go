// Package anomaly classifies differences between the fingerprint a session was issued with
// and the one presented on refresh. It never blocks; callers decide what to log.
package anomaly

import (
	"net/netip"
	"strings"

	"auth-session-service/internal/session/domain"
)

// Result is the outcome of a fingerprint comparison.
type Result struct {
	Match        bool
	IPChanged    bool
	AgentChanged bool
}

// Compare reports which parts of the fingerprint changed between previous and current.
// IPs are compared as parsed addresses, so an IPv4-mapped IPv6 address equals its IPv4 form;
// unparsable values fall back to trimmed string equality. User agents must match exactly after trimming.
func Compare(previous, current domain.Fingerprint) Result {
	ipChanged := !sameIP(previous.IP, current.IP)
	agentChanged := strings.TrimSpace(previous.UserAgent) != strings.TrimSpace(current.UserAgent)
	return Result{
		Match:        !ipChanged && !agentChanged,
		IPChanged:    ipChanged,
		AgentChanged: agentChanged,
	}
}

func sameIP(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return pa.Unmap().WithZone("") == pb.Unmap().WithZone("")
}
