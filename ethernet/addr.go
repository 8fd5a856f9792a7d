package ethernet

import (
	"fmt"
	"net"
)

// broadcastAddr is the all-ones Ethernet broadcast address.
var broadcastAddr = [AddrLen]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// BroadcastAddr returns the Ethernet broadcast address.
func BroadcastAddr() []byte {
	return broadcastAddr[:]
}

// IsBroadcast reports whether addr is the Ethernet broadcast address.
func IsBroadcast(addr []byte) bool {
	if len(addr) < AddrLen {
		return false
	}
	for i := 0; i < AddrLen; i++ {
		if addr[i] != 0xff {
			return false
		}
	}
	return true
}

// IsMulticast reports whether addr has the Ethernet group bit set.
// The broadcast address also has the group bit set; receive filtering
// checks IsBroadcast separately.
func IsMulticast(addr []byte) bool {
	return len(addr) >= AddrLen && addr[0]&0x01 != 0
}

// IPv6MulticastAddr maps an IPv6 multicast address to its Ethernet
// multicast address per RFC 2464 section 7: the first two octets are
// 0x33 0x33 and the last four octets are the last four octets of the
// IPv6 address.
func IPv6MulticastAddr(ip net.IP) (addr [AddrLen]byte) {
	addr[0] = 0x33
	addr[1] = 0x33
	copy(addr[2:], ip[12:16])
	return
}

// IPv4MulticastAddr maps an IPv4 multicast group address to its
// Ethernet multicast address: the 01:00:5e prefix followed by the low
// 23 bits of the group address.
func IPv4MulticastAddr(ip net.IP) (addr [AddrLen]byte) {
	addr[0] = 0x01
	addr[1] = 0x00
	addr[2] = 0x5e
	addr[3] = ip[1] & 0x7f
	addr[4] = ip[2]
	addr[5] = ip[3]
	return
}

// addrString renders a hardware address for logging.
func addrString(addr []byte) string {
	if len(addr) < AddrLen {
		return "??:??:??:??:??:??"
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
}
