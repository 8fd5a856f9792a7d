/*
Package packet provides the buffer representation shared by the link
and network layers: a packet is an ordered chain of fragments, each
with reserved headroom ahead of its payload so that link headers can
be overlaid in place without reallocating.

The package carries no protocol knowledge of its own.  Protocol layers
annotate a packet with its network family, resolved link addresses and
VLAN tagging, and strip or overlay headers through the fragment
methods.
*/
package packet

import "sync/atomic"

// Family identifies the network-layer protocol carried by a packet.
type Family int

const (
	// FamilyUnspec is the zero value; no family has been resolved yet.
	FamilyUnspec Family = iota
	// FamilyIPv4 identifies an IPv4 (or ARP) payload.
	FamilyIPv4
	// FamilyIPv6 identifies an IPv6 payload.
	FamilyIPv6
)

// String provides a human-readable representation of Family.
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	}
	return "unspec"
}

// TagUnspec is the sentinel VLAN tag value meaning "no VLAN tag
// resolved".  0x0fff is a reserved VLAN identifier on the wire.
const TagUnspec uint16 = 0x0fff

// Interface is the minimal view of a network interface a packet needs
// to carry: its registry index and hardware address.  The link layer
// defines the full interface contract.
type Interface interface {
	Index() int
	LinkAddr() []byte
}

// Packet is a network packet in flight through the stack.
type Packet struct {
	// Frags is the head of the packet's fragment chain.
	Frags *Buf

	family    Family
	iface     Interface
	llReserve int
	llSrc     []byte
	llDst     []byte
	vlanTag   uint16
	vlanPrio  uint8
	priority  uint8
	refs      int32
}

// New returns an empty packet holding one reference.
func New() *Packet {
	return &Packet{
		vlanTag: TagUnspec,
		refs:    1,
	}
}

// Ref takes an additional reference on the packet.
func (p *Packet) Ref() *Packet {
	atomic.AddInt32(&p.refs, 1)
	return p
}

// Unref drops a reference.  When the last reference is dropped the
// fragment chain is released; the packet must not be used after that.
func (p *Packet) Unref() {
	if atomic.AddInt32(&p.refs, -1) <= 0 {
		p.Frags = nil
	}
}

// Released reports whether the packet's last reference has been
// dropped.
func (p *Packet) Released() bool {
	return atomic.LoadInt32(&p.refs) <= 0
}

// AppendFrag links b onto the end of the fragment chain.
func (p *Packet) AppendFrag(b *Buf) {
	if p.Frags == nil {
		p.Frags = b
		return
	}
	f := p.Frags
	for f.Next != nil {
		f = f.Next
	}
	f.Next = b
}

// TotalLen returns the sum of all fragment payload lengths.
func (p *Packet) TotalLen() int {
	var n int
	for f := p.Frags; f != nil; f = f.Next {
		n += f.Len()
	}
	return n
}

// Family returns the packet's network family.
func (p *Packet) Family() Family { return p.family }

// SetFamily records the packet's network family.
func (p *Packet) SetFamily(f Family) { p.family = f }

// Iface returns the interface the packet is associated with.
func (p *Packet) Iface() Interface { return p.iface }

// SetIface associates the packet with an interface.
func (p *Packet) SetIface(iface Interface) { p.iface = iface }

// LLReserve returns the link-header length reserved ahead of the
// payload in every fragment.
func (p *Packet) LLReserve() int { return p.llReserve }

// SetLLReserve records the link-header reserve length.
func (p *Packet) SetLLReserve(n int) { p.llReserve = n }

// LLSrc returns the resolved source link address, a view aliasing
// either a frame header or an interface's address.  Nil if unset.
func (p *Packet) LLSrc() []byte { return p.llSrc }

// SetLLSrc records the source link address view.
func (p *Packet) SetLLSrc(addr []byte) { p.llSrc = addr }

// LLDst returns the resolved destination link address view.  Nil if
// unset.
func (p *Packet) LLDst() []byte { return p.llDst }

// SetLLDst records the destination link address view.
func (p *Packet) SetLLDst(addr []byte) { p.llDst = addr }

// VLANTag returns the packet's VLAN identifier, or TagUnspec.
func (p *Packet) VLANTag() uint16 { return p.vlanTag }

// SetVLANTag records the packet's VLAN identifier.
func (p *Packet) SetVLANTag(tag uint16) { p.vlanTag = tag }

// VLANPriority returns the packet's VLAN priority code point.
func (p *Packet) VLANPriority() uint8 { return p.vlanPrio }

// SetVLANPriority records the packet's VLAN priority code point.
func (p *Packet) SetVLANPriority(prio uint8) { p.vlanPrio = prio }

// Priority returns the packet's queueing priority.
func (p *Packet) Priority() uint8 { return p.priority }

// SetPriority records the packet's queueing priority.
func (p *Packet) SetPriority(prio uint8) { p.priority = prio }
