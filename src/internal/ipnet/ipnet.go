package ipnet

import "net/netip"

// Ranges that never produce bus events: firewall rules for loopback,
// private, link-local and TEST-NET addresses are pointless or harmful.
var excludedRanges = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
}

// IsLocal reports whether ipAddress falls in a local, private or test
// range. Unparseable addresses count as local so they are never published.
func IsLocal(ipAddress string) bool {
	addr, err := netip.ParseAddr(ipAddress)
	if err != nil {
		return true
	}
	addr = addr.Unmap()

	for _, prefix := range excludedRanges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ExcludedRanges returns the excluded CIDR ranges in string form.
func ExcludedRanges() []string {
	out := make([]string, len(excludedRanges))
	for i, prefix := range excludedRanges {
		out[i] = prefix.String()
	}
	return out
}
