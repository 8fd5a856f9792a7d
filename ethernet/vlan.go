package ethernet

import (
	"errors"
	"net"
	"sync/atomic"

	"github.com/go-kit/kit/log/level"

	"github.com/ethlab/go-ethl2/packet"
)

var (
	// ErrInvalidInterface is returned when the interface is not bound
	// to the Ethernet link layer.
	ErrInvalidInterface = errors.New("interface is not an Ethernet interface")
	// ErrNotInitialized is returned when the context was never
	// initialized for a VLAN-capable device.
	ErrNotInitialized = errors.New("Ethernet context is not initialized")
	// ErrInvalidTag is returned when the unspecified sentinel tag is
	// passed to a VLAN management operation.
	ErrInvalidTag = errors.New("invalid VLAN tag")
	// ErrVLANExists is returned when the (interface, tag) binding
	// already exists.
	ErrVLANExists = errors.New("VLAN tag already enabled")
	// ErrNoCapacity is returned when the interface owns no free VLAN
	// table slot.
	ErrNoCapacity = errors.New("no free VLAN table slot for interface")
	// ErrVLANNotFound is returned when no matching (interface, tag)
	// binding exists.
	ErrVLANNotFound = errors.New("VLAN tag not enabled")
	// ErrNoVLANRoute is returned when no VLAN tag could be resolved
	// for an outbound packet; the frame must be dropped.
	ErrNoVLANRoute = errors.New("no VLAN tag bound to interface")
)

// vlanEntry binds a VLAN identifier to the logical interface owning
// it.  A tag of packet.TagUnspec marks the slot free.
type vlanEntry struct {
	tag   uint16
	iface Interface
}

// setIfaceBit marks an interface index in the enabled bitmask.
func setIfaceBit(bits *uint64, idx int) {
	if idx < 0 || idx >= 64 {
		return
	}
	for {
		old := atomic.LoadUint64(bits)
		if atomic.CompareAndSwapUint64(bits, old, old|uint64(1)<<uint(idx)) {
			return
		}
	}
}

// clearIfaceBit clears an interface index in the enabled bitmask.
func clearIfaceBit(bits *uint64, idx int) {
	if idx < 0 || idx >= 64 {
		return
	}
	for {
		old := atomic.LoadUint64(bits)
		if atomic.CompareAndSwapUint64(bits, old, old&^(uint64(1)<<uint(idx))) {
			return
		}
	}
}

// testIfaceBit reports whether an interface index is set in the
// enabled bitmask.
func testIfaceBit(bits *uint64, idx int) bool {
	if idx < 0 || idx >= 64 {
		return false
	}
	return atomic.LoadUint64(bits)&(uint64(1)<<uint(idx)) != 0
}

func clearIfaceBits(bits *uint64) {
	atomic.StoreUint64(bits, 0)
}

// IsVLANEnabled reports whether VLAN processing is enabled for iface.
// When every interface the context knows has VLAN enabled, the
// per-interface bitmask check is skipped.
func (ctx *Context) IsVLANEnabled(iface Interface) bool {
	enabled := atomic.LoadInt32(&ctx.vlanEnabled)
	if enabled == 0 {
		return false
	}
	if enabled == VLANMaxCount {
		// All interfaces are using VLAN, no need to check further.
		return true
	}
	return testIfaceBit(&ctx.ifaceBits, iface.Index())
}

// getVLAN returns the table entry matching (iface, tag), or nil.
func (ctx *Context) getVLAN(iface Interface, tag uint16) *vlanEntry {
	for i := range ctx.vlan {
		if ctx.vlan[i].iface == iface && ctx.vlan[i].tag == tag {
			return &ctx.vlan[i]
		}
	}
	return nil
}

// VLANEnable binds a VLAN tag to iface: the first free table slot
// owned by iface is claimed, the interface is marked in the enabled
// bitmask, the driver's VLAN setup hook is invoked when implemented,
// and the enabled count is incremented saturating at the table
// capacity.
func (ctx *Context) VLANEnable(iface Interface, tag uint16) error {
	if iface.L2() != L2TypeEthernet {
		return ErrInvalidInterface
	}
	if !ctx.isInit {
		return ErrNotInitialized
	}
	if tag == packet.TagUnspec {
		return ErrInvalidTag
	}
	if ctx.getVLAN(iface, tag) != nil {
		return ErrVLANExists
	}

	for i := range ctx.vlan {
		if ctx.vlan[i].iface != iface {
			continue
		}
		if ctx.vlan[i].tag != packet.TagUnspec {
			continue
		}

		level.Debug(ctx.logger).Log(
			"message", "adding VLAN tag",
			"slot", i,
			"tag", tag,
			"iface", iface.Index())

		ctx.vlan[i].tag = tag

		setIfaceBit(&ctx.ifaceBits, iface.Index())

		if vs, ok := iface.(VLANSetup); ok {
			if err := vs.VLANSetup(tag, true); err != nil {
				level.Error(ctx.logger).Log(
					"message", "VLAN setup hook failed",
					"tag", tag,
					"error", err)
			}
		}

		if atomic.AddInt32(&ctx.vlanEnabled, 1) > VLANMaxCount {
			atomic.StoreInt32(&ctx.vlanEnabled, VLANMaxCount)
		}

		return nil
	}

	return ErrNoCapacity
}

// VLANDisable removes a VLAN tag binding from iface: the entry's tag
// is reset to the unspecified sentinel, the interface bit is cleared,
// the driver hook is invoked, and the enabled count is decremented
// flooring at zero.
func (ctx *Context) VLANDisable(iface Interface, tag uint16) error {
	if iface.L2() != L2TypeEthernet {
		return ErrInvalidInterface
	}
	if tag == packet.TagUnspec {
		return ErrInvalidTag
	}

	vlan := ctx.getVLAN(iface, tag)
	if vlan == nil {
		return ErrVLANNotFound
	}

	level.Debug(ctx.logger).Log(
		"message", "removing VLAN tag",
		"tag", vlan.tag,
		"iface", iface.Index())

	vlan.tag = packet.TagUnspec

	clearIfaceBit(&ctx.ifaceBits, iface.Index())

	if vs, ok := iface.(VLANSetup); ok {
		if err := vs.VLANSetup(tag, false); err != nil {
			level.Error(ctx.logger).Log(
				"message", "VLAN setup hook failed",
				"tag", tag,
				"error", err)
		}
	}

	if atomic.AddInt32(&ctx.vlanEnabled, -1) < 0 {
		atomic.StoreInt32(&ctx.vlanEnabled, 0)
	}

	return nil
}

// VLANIface returns the logical interface bound to tag.  If no entry
// matches, the first interface holding an unspecified slot is
// returned as the non-VLAN fallback; nil is returned only when the
// table is empty.
func (ctx *Context) VLANIface(tag uint16) Interface {
	var firstNonVLAN Interface

	for i := range ctx.vlan {
		if ctx.vlan[i].tag == packet.TagUnspec {
			if firstNonVLAN == nil {
				firstNonVLAN = ctx.vlan[i].iface
			}
			continue
		}

		if ctx.vlan[i].tag != tag {
			continue
		}

		level.Debug(ctx.logger).Log(
			"message", "VLAN tag lookup",
			"slot", i,
			"tag", tag,
			"iface", ctx.vlan[i].iface.Index())

		return ctx.vlan[i].iface
	}

	return firstNonVLAN
}

// VLANTagFor returns the tag bound to iface, or packet.TagUnspec when
// iface has no binding.
func (ctx *Context) VLANTagFor(iface Interface) uint16 {
	for i := range ctx.vlan {
		if ctx.vlan[i].iface == iface {
			return ctx.vlan[i].tag
		}
	}
	return packet.TagUnspec
}

// resolveVLANTag resolves the VLAN tag for an outbound packet.  A
// packet already carrying a concrete tag is left alone.  Otherwise
// the effective source interface is determined: when the packet's
// network source address belongs to a different attached interface,
// that interface's binding is used, steering the frame onto the VLAN
// owning the source address.
func (ctx *Context) resolveVLANTag(iface Interface, pkt *packet.Packet) error {
	if pkt.VLANTag() != packet.TagUnspec {
		return nil
	}

	if ctx.lookup != nil {
		var target Interface

		switch pkt.Family() {
		case packet.FamilyIPv6:
			if src := ipv6Src(pkt); src != nil {
				target = ctx.lookup.FindV6(src)
			}
		case packet.FamilyIPv4:
			if src := ipv4Src(pkt); src != nil {
				target = ctx.lookup.FindV4(src)
			}
		}

		if target != nil && target != iface {
			level.Debug(ctx.logger).Log(
				"message", "steering VLAN lookup to source address owner",
				"iface", iface.Index(),
				"target", target.Index())
			iface = target
		}
	}

	for i := range ctx.vlan {
		if ctx.vlan[i].tag == packet.TagUnspec || ctx.vlan[i].iface != iface {
			continue
		}

		pkt.SetVLANTag(ctx.vlan[i].tag)

		return nil
	}

	return ErrNoVLANRoute
}

// setVLANPriority derives the outbound VLAN priority.  The packet's
// queueing priority is used directly as the priority code point; a
// proper traffic-class mapping is still missing.
func setVLANPriority(pkt *packet.Packet) {
	pkt.SetVLANPriority(pkt.Priority())
}

// ipv4Src returns the source address field of the packet's IPv4
// header, or nil when the header is too short.
func ipv4Src(pkt *packet.Packet) net.IP {
	if pkt.Frags == nil {
		return nil
	}
	data := pkt.Frags.Data()
	if len(data) < 20 {
		return nil
	}
	return net.IP(data[12:16])
}

// ipv6Src returns the source address field of the packet's IPv6
// header, or nil when the header is too short.
func ipv6Src(pkt *packet.Packet) net.IP {
	if pkt.Frags == nil {
		return nil
	}
	data := pkt.Frags.Data()
	if len(data) < 40 {
		return nil
	}
	return net.IP(data[8:24])
}
