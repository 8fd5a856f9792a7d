package ethernet

import (
	"encoding/binary"

	"github.com/go-kit/kit/log/level"

	"github.com/ethlab/go-ethl2/packet"
)

// FillHeader overlays an Ethernet header onto frag's headroom,
// starting at the packet's link-header reserve ahead of the payload.
// The header shape is chosen by whether VLAN is enabled for the
// packet's interface; the VLAN variant additionally carries the tag
// protocol identifier and the tag control information combining the
// packet's VLAN priority and tag.
//
// src and dst may alias the header's own address fields, which
// happens when they were taken from a previous header in the same
// buffer; the copy is skipped in that case so the fields are not
// corrupted mid-copy.
//
// The returned slice is a view onto the written header, useful for
// diagnostics only.
func (ctx *Context) FillHeader(pkt *packet.Packet, frag *packet.Buf, ptype uint16, src, dst []byte) ([]byte, error) {
	if ctx.IsVLANEnabled(pkt.Iface().(Interface)) {
		hdr, err := frag.HeaderAt(pkt.LLReserve(), VLANHeaderLen)
		if err != nil {
			return nil, err
		}

		copyAddr(hdr[0:AddrLen], dst)
		copyAddr(hdr[AddrLen:2*AddrLen], src)

		tci := vlanTCI(pkt.VLANPriority(), pkt.VLANTag())
		binary.BigEndian.PutUint16(hdr[12:14], TypeVLAN)
		binary.BigEndian.PutUint16(hdr[14:16], tci)
		binary.BigEndian.PutUint16(hdr[16:18], ptype)

		level.Debug(ctx.logger).Log(
			"message", "fill VLAN header",
			"src", addrString(hdr[AddrLen:2*AddrLen]),
			"dst", addrString(hdr[0:AddrLen]),
			"type", ptype,
			"tag", vlanVID(tci),
			"priority", vlanPCP(tci),
			"len", frag.Len())

		return hdr, nil
	}

	hdr, err := frag.HeaderAt(pkt.LLReserve(), HeaderLen)
	if err != nil {
		return nil, err
	}

	copyAddr(hdr[0:AddrLen], dst)
	copyAddr(hdr[AddrLen:2*AddrLen], src)

	binary.BigEndian.PutUint16(hdr[12:14], ptype)

	level.Debug(ctx.logger).Log(
		"message", "fill header",
		"src", addrString(hdr[AddrLen:2*AddrLen]),
		"dst", addrString(hdr[0:AddrLen]),
		"type", ptype,
		"len", frag.Len())

	return hdr, nil
}

// copyAddr copies a link address into a header field unless the
// source is unset or already aliases the field.
func copyAddr(field, addr []byte) {
	if len(addr) < AddrLen || &field[0] == &addr[0] {
		return
	}
	copy(field, addr[:AddrLen])
}
