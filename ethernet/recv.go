package ethernet

import (
	"bytes"
	"encoding/binary"

	"github.com/go-kit/kit/log/level"

	"github.com/ethlab/go-ethl2/packet"
)

// Recv classifies an inbound frame positioned at its link header,
// filters frames not addressed to iface, strips the link header and
// either dispatches ARP payloads to the resolver or signals the
// network layer to continue.  On VerdictDrop the caller owns
// releasing the packet.
func (ctx *Context) Recv(iface Interface, pkt *packet.Packet) Verdict {
	frag := pkt.Frags
	if frag == nil || frag.Len() < HeaderLen {
		level.Debug(ctx.logger).Log(
			"message", "dropping truncated frame",
			"len", pkt.TotalLen())
		return VerdictDrop
	}

	pkt.SetIface(iface)

	data := frag.Data()
	etherType := binary.BigEndian.Uint16(data[12:14])
	hdrLen := HeaderLen
	vlanTagged := false

	if ctx.IsVLANEnabled(iface) && etherType == TypeVLAN {
		if frag.Len() < VLANHeaderLen {
			level.Debug(ctx.logger).Log(
				"message", "dropping truncated VLAN frame",
				"len", frag.Len())
			return VerdictDrop
		}

		tci := binary.BigEndian.Uint16(data[14:16])
		pkt.SetVLANTag(vlanVID(tci))
		pkt.SetVLANPriority(vlanPCP(tci))

		etherType = binary.BigEndian.Uint16(data[16:18])
		hdrLen = VLANHeaderLen
		vlanTagged = true
	}

	switch etherType {
	case TypeIPv4, TypeARP:
		pkt.SetFamily(packet.FamilyIPv4)
	case TypeIPv6:
		pkt.SetFamily(packet.FamilyIPv6)
	default:
		level.Debug(ctx.logger).Log(
			"message", "dropping frame with unknown type",
			"type", etherType)
		return VerdictDrop
	}

	// Both header shapes carry the addresses at the same offsets, so
	// the views are valid regardless of tagging.
	pkt.SetLLDst(data[0:AddrLen])
	pkt.SetLLSrc(data[AddrLen : 2*AddrLen])

	if vlanTagged {
		level.Debug(ctx.logger).Log(
			"message", "recv VLAN frame",
			"iface", iface.Index(),
			"src", addrString(pkt.LLSrc()),
			"dst", addrString(pkt.LLDst()),
			"type", etherType,
			"tag", pkt.VLANTag(),
			"priority", pkt.VLANPriority(),
			"len", pkt.TotalLen())
	} else {
		level.Debug(ctx.logger).Log(
			"message", "recv frame",
			"iface", iface.Index(),
			"src", addrString(pkt.LLSrc()),
			"dst", addrString(pkt.LLDst()),
			"type", etherType,
			"len", pkt.TotalLen())
	}

	dst := pkt.LLDst()
	if !IsBroadcast(dst) && !IsMulticast(dst) &&
		!bytes.Equal(dst, iface.LinkAddr()) {
		// The frame is not for us as the link addresses differ.
		level.Debug(ctx.logger).Log(
			"message", "dropping frame, not addressed to us",
			"iface_addr", addrString(iface.LinkAddr()))
		return VerdictDrop
	}

	pkt.SetLLReserve(hdrLen)
	if err := frag.Pull(hdrLen); err != nil {
		return VerdictDrop
	}

	if pkt.Family() == packet.FamilyIPv4 && etherType == TypeARP {
		if ctx.arp == nil {
			return VerdictDrop
		}
		level.Debug(ctx.logger).Log(
			"message", "ARP packet received",
			"src", addrString(pkt.LLSrc()))
		return ctx.arp.Input(pkt)
	}

	updateLength(pkt)

	return VerdictContinue
}

// updateLength trims Ethernet minimum-frame padding from the tail of
// the fragment chain.  When the IP header declares a payload shorter
// than the 46 byte Ethernet minimum, the excess bytes appended by the
// sender are cut so upper layers see exactly the declared length.
// Re-applying after a trim is a no-op.
func updateLength(pkt *packet.Packet) {
	if pkt.Frags == nil {
		return
	}

	data := pkt.Frags.Data()

	var declared int
	if pkt.Family() == packet.FamilyIPv4 {
		if len(data) < 4 {
			return
		}
		declared = int(binary.BigEndian.Uint16(data[2:4]))
	} else {
		// The IPv6 length field excludes the fixed header, add it
		// back before comparing against the frame minimum.
		if len(data) < 6 {
			return
		}
		declared = int(binary.BigEndian.Uint16(data[4:6])) + 40
	}

	if declared < MinFrameLen-HeaderLen {
		remaining := declared
		for frag := pkt.Frags; frag != nil; frag = frag.Next {
			if frag.Len() < remaining {
				remaining -= frag.Len()
			} else {
				_ = frag.SetLen(remaining)
				remaining = 0
			}
		}
	}
}
