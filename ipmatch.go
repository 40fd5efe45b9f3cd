package guard

import (
	"encoding/binary"
	"net/netip"
	"strconv"
	"strings"
)

// IPAllowed reports whether ip equals, or falls inside, any entry. Entries are
// exact addresses or CIDR ranges.
func IPAllowed(ip string, entries []string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == ip {
			return true
		}
		if strings.Contains(entry, "/") && CIDRContains(entry, ip) {
			return true
		}
	}
	return false
}

// CIDRContains reports whether ip lies inside cidr. IPv4 ranges compare the
// leading bits of the two 32-bit addresses. A prefix length that is not a
// number in [0,32] (IPv4) or [0,128] (IPv6) never matches.
func CIDRContains(cidr, ip string) bool {
	base, bitsStr, ok := strings.Cut(cidr, "/")
	if !ok {
		return false
	}
	bits, err := strconv.Atoi(strings.TrimSpace(bitsStr))
	if err != nil || bits < 0 {
		return false
	}
	network, err := netip.ParseAddr(strings.TrimSpace(base))
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	network, addr = network.Unmap(), addr.Unmap()
	if network.Is4() != addr.Is4() {
		return false
	}
	if network.Is4() {
		if bits > 32 {
			return false
		}
		return ipv4Prefix(network, bits) == ipv4Prefix(addr, bits)
	}
	if bits > 128 {
		return false
	}
	prefix, err := network.Prefix(bits)
	if err != nil {
		return false
	}
	return prefix.Contains(addr)
}

func ipv4Prefix(a netip.Addr, bits int) uint32 {
	if bits == 0 {
		return 0
	}
	b := a.As4()
	return binary.BigEndian.Uint32(b[:]) >> (32 - bits)
}

// ValidIPEntry reports whether entry is an address or a CIDR range with an
// in-range prefix length.
func ValidIPEntry(entry string) bool {
	entry = strings.TrimSpace(entry)
	if !strings.Contains(entry, "/") {
		_, err := netip.ParseAddr(entry)
		return err == nil
	}
	base, bitsStr, _ := strings.Cut(entry, "/")
	addr, err := netip.ParseAddr(base)
	if err != nil {
		return false
	}
	bits, err := strconv.Atoi(bitsStr)
	if err != nil || bits < 0 {
		return false
	}
	return bits <= addr.Unmap().BitLen()
}
