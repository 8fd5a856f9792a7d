package ethernet

const (
	// AddrLen is the length of an Ethernet hardware address.
	AddrLen = 6

	// HeaderLen is the length of a plain Ethernet II header:
	// destination, source, and the 16 bit protocol type field.
	HeaderLen = 14

	// VLANHeaderLen is the length of an 802.1Q tagged header, which
	// inserts the tag protocol identifier and tag control information
	// ahead of the inner protocol type field.
	VLANHeaderLen = 18

	// MinFrameLen is the minimum Ethernet frame length excluding the
	// frame check sequence.  Frames shorter than this are padded on
	// the wire, so a received IP payload may carry trailing padding.
	MinFrameLen = 60
)

// Protocol type values carried in the Ethernet header type field.
const (
	// TypeIPv4 identifies an IPv4 payload.
	TypeIPv4 uint16 = 0x0800
	// TypeARP identifies an ARP payload.
	TypeARP uint16 = 0x0806
	// TypeVLAN is the 802.1Q tag protocol identifier.
	TypeVLAN uint16 = 0x8100
	// TypeIPv6 identifies an IPv6 payload.
	TypeIPv6 uint16 = 0x86dd
)

// VLANMaxCount is the capacity of a context's VLAN table: the maximum
// number of logical interfaces which may be multiplexed over one
// physical interface.
const VLANMaxCount = 8

// vlanVID extracts the 12 bit VLAN identifier from a tag control
// information field.
func vlanVID(tci uint16) uint16 {
	return tci & 0x0fff
}

// vlanPCP extracts the 3 bit priority code point from a tag control
// information field.
func vlanPCP(tci uint16) uint8 {
	return uint8(tci >> 13)
}

// vlanTCI combines a priority code point and VLAN identifier into a
// tag control information field.
func vlanTCI(prio uint8, tag uint16) uint16 {
	return uint16(prio)<<13 | tag&0x0fff
}
