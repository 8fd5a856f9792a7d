package ethernet

import (
	"github.com/go-kit/kit/log/level"

	"github.com/ethlab/go-ethl2/packet"
)

// ipv4Dst returns the destination address field of the packet's IPv4
// header, or nil when the header is too short.
func ipv4Dst(pkt *packet.Packet) []byte {
	if pkt.Frags == nil {
		return nil
	}
	data := pkt.Frags.Data()
	if len(data) < 20 {
		return nil
	}
	return data[16:20]
}

// ipv6Dst returns the destination address field of the packet's IPv6
// header, or nil when the header is too short.
func ipv6Dst(pkt *packet.Packet) []byte {
	if pkt.Frags == nil {
		return nil
	}
	data := pkt.Frags.Data()
	if len(data) < 40 {
		return nil
	}
	return data[24:40]
}

// resolveIPv4Group fills the link addresses for IPv4 broadcast and
// multicast destinations, which need no ARP resolution.  The
// multicast mapping is written in place into the fragment's header
// destination field.  Reports whether the destination was handled.
func (ctx *Context) resolveIPv4Group(iface Interface, pkt *packet.Packet) bool {
	dst := ipv4Dst(pkt)
	if dst == nil {
		return false
	}

	if dst[0] == 0xff && dst[1] == 0xff && dst[2] == 0xff && dst[3] == 0xff {
		pkt.SetLLDst(BroadcastAddr())
		pkt.SetLLSrc(iface.LinkAddr())
		return true
	}

	if dst[0] == 224 {
		hdr, err := pkt.Frags.HeaderAt(pkt.LLReserve(), HeaderLen)
		if err != nil {
			return false
		}

		addr := IPv4MulticastAddr(dst)
		copy(hdr[0:AddrLen], addr[:])

		pkt.SetLLDst(hdr[0:AddrLen])
		pkt.SetLLSrc(iface.LinkAddr())
		return true
	}

	return false
}

// Send resolves the link addresses and VLAN tagging for an outbound
// packet, overlays a link header onto every fragment and hands the
// packet to the interface's transmit queue.
//
// For IPv4 unicast the ARP collaborator may substitute its own
// request packet for the original; the original reference is dropped
// and must not be used by the caller afterwards.  On VerdictDrop the
// caller owns releasing the packet.
func (ctx *Context) Send(iface Interface, pkt *packet.Packet) Verdict {
	arpPrepared := false

	if pkt.Family() == packet.FamilyIPv4 && ctx.arp != nil {
		if !ctx.resolveIPv4Group(iface, pkt) {
			arpPkt := ctx.arp.Prepare(pkt)
			if arpPkt == nil {
				return VerdictDrop
			}

			if arpPkt != pkt {
				level.Debug(ctx.logger).Log(
					"message", "sending substitute ARP packet",
					"iface", iface.Index())

				// The original went to the ARP pending queue (or
				// there was no room for it); either way the resolver
				// owns it now.
				pkt.Unref()

				pkt = arpPkt
			} else {
				level.Debug(ctx.logger).Log(
					"message", "found ARP entry",
					"iface", iface.Index())
			}

			hdr, err := pkt.Frags.HeaderAt(pkt.LLReserve(), HeaderLen)
			if err != nil {
				return VerdictDrop
			}
			pkt.SetLLDst(hdr[0:AddrLen])
			pkt.SetLLSrc(hdr[AddrLen : 2*AddrLen])

			// The resolver has prepared the frame already, do not
			// touch the packet further.
			arpPrepared = true
		}
	} else {
		// If the source address is multicast or broadcast, a receive
		// buffer is probably being reused to reply to its sender.
		// Substitute the interface's real address.
		if IsBroadcast(pkt.LLSrc()) || IsMulticast(pkt.LLSrc()) || pkt.LLSrc() == nil {
			pkt.SetLLSrc(iface.LinkAddr())
		}

		if pkt.LLDst() == nil {
			if dst := ipv6Dst(pkt); pkt.Family() == packet.FamilyIPv6 &&
				dst != nil && dst[0] == 0xff {
				if hdr, err := pkt.Frags.HeaderAt(pkt.LLReserve(), HeaderLen); err == nil {
					addr := IPv6MulticastAddr(dst)
					copy(hdr[0:AddrLen], addr[:])
					pkt.SetLLDst(hdr[0:AddrLen])
				}
			}

			if pkt.LLDst() == nil {
				pkt.SetLLDst(BroadcastAddr())
			}

			level.Debug(ctx.logger).Log(
				"message", "destination address was not set",
				"dst", addrString(pkt.LLDst()))
		}
	}

	if !arpPrepared {
		ptype := TypeIPv4
		if pkt.Family() != packet.FamilyIPv4 {
			ptype = TypeIPv6
		}

		if ctx.IsVLANEnabled(iface) {
			if err := ctx.resolveVLANTag(iface, pkt); err != nil {
				level.Debug(ctx.logger).Log(
					"message", "dropping packet, no VLAN route",
					"iface", iface.Index(),
					"error", err)
				return VerdictDrop
			}

			setVLANPriority(pkt)
		}

		// Every fragment independently carries headroom which must
		// present a valid header if the fragment is transmitted as
		// its own frame, so each one gets the header.
		for frag := pkt.Frags; frag != nil; frag = frag.Next {
			if _, err := ctx.FillHeader(pkt, frag, ptype, pkt.LLSrc(), pkt.LLDst()); err != nil {
				level.Debug(ctx.logger).Log(
					"message", "dropping packet, header does not fit",
					"error", err)
				return VerdictDrop
			}
		}
	}

	iface.QueueTx(pkt)

	return VerdictOK
}
