package arp

const (
	// PacketLen is the length of an ARP packet for IPv4 over
	// Ethernet.
	PacketLen = 28

	// OpRequest is the ARP request operation code.
	OpRequest uint16 = 1
	// OpReply is the ARP reply operation code.
	OpReply uint16 = 2

	hwTypeEthernet uint16 = 1
	hwAddrLen      uint8  = 6
	protoAddrLen   uint8  = 4
)
