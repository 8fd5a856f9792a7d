/*
Package arp implements the address-resolution collaborator consumed
by the Ethernet link layer: a cache of IPv4 to hardware address
mappings, request/reply handling for inbound ARP payloads, and
outbound resolution which substitutes a request packet while the
original waits on the pending queue.

Retry and timeout policy for pending resolutions is intentionally
left to the surrounding stack.
*/
package arp

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/ethlab/go-ethl2/ethernet"
	"github.com/ethlab/go-ethl2/packet"
)

// AddrSource reports the IPv4 address assigned to an interface, used
// to recognise requests addressed to us and to fill the sender fields
// of generated packets.  A nil return means the interface has no
// IPv4 address.
type AddrSource interface {
	IPv4(iface packet.Interface) net.IP
}

// Resolver implements the ethernet.ARP contract.
type Resolver struct {
	logger log.Logger
	addrs  AddrSource

	mu      sync.Mutex
	cache   map[[4]byte][6]byte
	pending map[[4]byte][]*packet.Packet
}

// NewResolver returns a resolver with an empty cache.
func NewResolver(logger log.Logger, addrs AddrSource) *Resolver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Resolver{
		logger:  logger,
		addrs:   addrs,
		cache:   make(map[[4]byte][6]byte),
		pending: make(map[[4]byte][]*packet.Packet),
	}
}

// ClearCache drops every cached mapping and releases any packets
// waiting on a resolution.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[[4]byte][6]byte)
	for _, pkts := range r.pending {
		for _, pkt := range pkts {
			pkt.Unref()
		}
	}
	r.pending = make(map[[4]byte][]*packet.Packet)
}

// Lookup returns the cached hardware address for ip.
func (r *Resolver) Lookup(ip net.IP) (addr [6]byte, ok bool) {
	v4 := ip.To4()
	if v4 == nil {
		return addr, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok = r.cache[ipKey(v4)]
	return addr, ok
}

func ipKey(ip net.IP) (key [4]byte) {
	copy(key[:], ip.To4())
	return
}

// fillEthHeader writes a plain Ethernet header for an IPv4 payload
// into the packet's reserved headroom and points the packet's link
// address views at it.
func fillEthHeader(pkt *packet.Packet, src, dst []byte) error {
	hdr, err := pkt.Frags.HeaderAt(pkt.LLReserve(), ethernet.HeaderLen)
	if err != nil {
		return err
	}
	copy(hdr[0:6], dst)
	copy(hdr[6:12], src)
	binary.BigEndian.PutUint16(hdr[12:14], ethernet.TypeIPv4)
	pkt.SetLLDst(hdr[0:6])
	pkt.SetLLSrc(hdr[6:12])
	return nil
}

// Prepare resolves the link destination of an outbound IPv4 packet.
//
// On a cache hit the packet's Ethernet header is written in place and
// the same packet is returned.  On a miss a request packet is built
// and returned instead, and the original moves to the pending queue
// until a reply arrives; the caller's reference to the original is no
// longer valid once Prepare returns a different packet.
func (r *Resolver) Prepare(pkt *packet.Packet) *packet.Packet {
	iface := pkt.Iface()
	if iface == nil || pkt.Frags == nil {
		return nil
	}

	data := pkt.Frags.Data()
	if len(data) < 20 {
		return nil
	}
	dstIP := net.IP(data[16:20])

	r.mu.Lock()
	hwaddr, ok := r.cache[ipKey(dstIP)]
	r.mu.Unlock()

	if ok {
		if err := fillEthHeader(pkt, iface.LinkAddr(), hwaddr[:]); err != nil {
			return nil
		}
		return pkt
	}

	req := r.newRequest(iface, dstIP)
	if req == nil {
		return nil
	}

	r.mu.Lock()
	key := ipKey(dstIP)
	r.pending[key] = append(r.pending[key], pkt.Ref())
	r.mu.Unlock()

	level.Debug(r.logger).Log(
		"message", "queued packet pending ARP resolution",
		"ip", dstIP.String())

	return req
}

// newRequest builds a broadcast ARP request asking for target's
// hardware address.
func (r *Resolver) newRequest(iface packet.Interface, target net.IP) *packet.Packet {
	var sender net.IP
	if r.addrs != nil {
		sender = r.addrs.IPv4(iface)
	}
	if sender == nil {
		sender = net.IPv4zero.To4()
	}

	req := packet.New()
	req.SetIface(iface)
	req.SetFamily(packet.FamilyIPv4)
	req.SetLLReserve(ethernet.HeaderLen)

	frag := packet.NewBuf(PacketLen, ethernet.HeaderLen)
	if err := frag.SetLen(PacketLen); err != nil {
		return nil
	}
	req.Frags = frag

	body := frag.Data()
	binary.BigEndian.PutUint16(body[0:2], hwTypeEthernet)
	binary.BigEndian.PutUint16(body[2:4], ethernet.TypeIPv4)
	body[4] = hwAddrLen
	body[5] = protoAddrLen
	binary.BigEndian.PutUint16(body[6:8], OpRequest)
	copy(body[8:14], iface.LinkAddr())
	copy(body[14:18], sender.To4())
	// target hardware address is unknown, left as zero
	copy(body[24:28], target.To4())

	hdr, err := frag.HeaderAt(ethernet.HeaderLen, ethernet.HeaderLen)
	if err != nil {
		return nil
	}
	copy(hdr[0:6], ethernet.BroadcastAddr())
	copy(hdr[6:12], iface.LinkAddr())
	binary.BigEndian.PutUint16(hdr[12:14], ethernet.TypeARP)
	req.SetLLDst(hdr[0:6])
	req.SetLLSrc(hdr[6:12])

	return req
}

// Input handles a received ARP payload, positioned immediately after
// the stripped link header.  Requests addressed to one of our
// interfaces generate a reply; replies update the cache and flush the
// pending queue.  The packet is consumed in all cases: the caller
// releases it when Input returns.
func (r *Resolver) Input(pkt *packet.Packet) ethernet.Verdict {
	iface := pkt.Iface()
	if iface == nil || pkt.Frags == nil || pkt.Frags.Len() < PacketLen {
		return ethernet.VerdictDrop
	}

	body := pkt.Frags.Data()
	if binary.BigEndian.Uint16(body[0:2]) != hwTypeEthernet ||
		binary.BigEndian.Uint16(body[2:4]) != ethernet.TypeIPv4 {
		return ethernet.VerdictDrop
	}

	op := binary.BigEndian.Uint16(body[6:8])

	var senderHW [6]byte
	copy(senderHW[:], body[8:14])
	senderIP := net.IP(body[14:18])
	targetIP := net.IP(body[24:28])

	switch op {
	case OpRequest:
		var local net.IP
		if r.addrs != nil {
			local = r.addrs.IPv4(iface)
		}
		if local == nil || !local.To4().Equal(targetIP) {
			return ethernet.VerdictDrop
		}

		// The requester is about to talk to us, learn its mapping.
		r.learn(senderIP, senderHW)

		reply := r.newReply(iface, local, senderIP, senderHW)
		if reply == nil {
			return ethernet.VerdictDrop
		}

		level.Debug(r.logger).Log(
			"message", "replying to ARP request",
			"ip", senderIP.String())

		if eth, ok := iface.(ethernet.Interface); ok {
			eth.QueueTx(reply)
		} else {
			reply.Unref()
			return ethernet.VerdictDrop
		}

		return ethernet.VerdictOK

	case OpReply:
		r.learn(senderIP, senderHW)
		r.flushPending(iface, senderIP, senderHW)
		return ethernet.VerdictOK
	}

	return ethernet.VerdictDrop
}

func (r *Resolver) learn(ip net.IP, hwaddr [6]byte) {
	r.mu.Lock()
	r.cache[ipKey(ip)] = hwaddr
	r.mu.Unlock()
}

// flushPending transmits every packet that was waiting for ip to
// resolve.
func (r *Resolver) flushPending(iface packet.Interface, ip net.IP, hwaddr [6]byte) {
	r.mu.Lock()
	key := ipKey(ip)
	pkts := r.pending[key]
	delete(r.pending, key)
	r.mu.Unlock()

	if len(pkts) == 0 {
		return
	}

	eth, ok := iface.(ethernet.Interface)

	for _, pkt := range pkts {
		if !ok {
			pkt.Unref()
			continue
		}
		if err := fillEthHeader(pkt, iface.LinkAddr(), hwaddr[:]); err != nil {
			pkt.Unref()
			continue
		}

		level.Debug(r.logger).Log(
			"message", "flushing packet after ARP resolution",
			"ip", ip.String())

		eth.QueueTx(pkt)
	}
}

// newReply builds a unicast ARP reply advertising our mapping.
func (r *Resolver) newReply(iface packet.Interface, local, peerIP net.IP, peerHW [6]byte) *packet.Packet {
	reply := packet.New()
	reply.SetIface(iface)
	reply.SetFamily(packet.FamilyIPv4)
	reply.SetLLReserve(ethernet.HeaderLen)

	frag := packet.NewBuf(PacketLen, ethernet.HeaderLen)
	if err := frag.SetLen(PacketLen); err != nil {
		return nil
	}
	reply.Frags = frag

	body := frag.Data()
	binary.BigEndian.PutUint16(body[0:2], hwTypeEthernet)
	binary.BigEndian.PutUint16(body[2:4], ethernet.TypeIPv4)
	body[4] = hwAddrLen
	body[5] = protoAddrLen
	binary.BigEndian.PutUint16(body[6:8], OpReply)
	copy(body[8:14], iface.LinkAddr())
	copy(body[14:18], local.To4())
	copy(body[18:24], peerHW[:])
	copy(body[24:28], peerIP.To4())

	hdr, err := frag.HeaderAt(ethernet.HeaderLen, ethernet.HeaderLen)
	if err != nil {
		return nil
	}
	copy(hdr[0:6], peerHW[:])
	copy(hdr[6:12], iface.LinkAddr())
	binary.BigEndian.PutUint16(hdr[12:14], ethernet.TypeARP)
	reply.SetLLDst(hdr[0:6])
	reply.SetLLSrc(hdr[6:12])

	return reply
}
