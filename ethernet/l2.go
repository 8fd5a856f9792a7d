package ethernet

import (
	"net"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/ethlab/go-ethl2/packet"
)

// Verdict is the disposition a pipeline stage returns for a packet.
type Verdict int

const (
	// VerdictOK means the packet was accepted and handed off.
	VerdictOK Verdict = iota
	// VerdictContinue means the packet should continue to the next
	// protocol layer.
	VerdictContinue
	// VerdictDrop means the packet must be discarded by the caller.
	VerdictDrop
)

// String provides a human-readable representation of Verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictContinue:
		return "continue"
	case VerdictDrop:
		return "drop"
	}
	return "???"
}

// L2Type identifies the link-layer implementation bound to an
// interface.
type L2Type int

const (
	// L2TypeNone is the zero value; no link layer is bound.
	L2TypeNone L2Type = iota
	// L2TypeEthernet identifies this Ethernet link layer.
	L2TypeEthernet
)

// DeviceCaps is a bitmask of hardware capabilities reported by an
// interface's device driver.
type DeviceCaps uint32

const (
	// CapHWVLAN is set when the device supports VLAN tagging in
	// hardware.
	CapHWVLAN DeviceCaps = 1 << 0
)

// Interface is the contract the Ethernet link layer consumes from the
// generic interface layer.
type Interface interface {
	packet.Interface

	// L2 returns the link-layer type bound to the interface.
	L2() L2Type
	// Capabilities returns the device driver's hardware capabilities.
	Capabilities() DeviceCaps
	// QueueTx hands a packet to the interface's transmit queue.
	// Ownership of the packet reference transfers to the queue.
	QueueTx(*packet.Packet)
}

// VLANSetup is implemented by interfaces whose device driver needs to
// be told about VLAN identifier membership, for example to program
// hardware filters or kernel subinterfaces.
type VLANSetup interface {
	VLANSetup(tag uint16, enable bool) error
}

// ARP is the address-resolution collaborator contract.  The link
// layer drives it but does not implement resolution itself.
type ARP interface {
	// Input handles a received ARP payload.  The returned verdict is
	// propagated unchanged to the receive caller.
	Input(*packet.Packet) Verdict
	// Prepare resolves the destination of an outbound IPv4 packet.
	// It returns the same packet with its link header already filled,
	// a substitute ARP request packet when resolution is pending (the
	// original moves to the resolver's pending queue), or nil when
	// the packet must be dropped.
	Prepare(*packet.Packet) *packet.Packet
	// ClearCache invalidates all cached address mappings.
	ClearCache()
}

// AddrLookup locates the attached interface owning a configured
// network-layer source address.  It is consulted only for VLAN
// source-based interface steering.
type AddrLookup interface {
	FindV4(ip net.IP) Interface
	FindV6(ip net.IP) Interface
}

// Context is the per-physical-interface Ethernet link-layer state:
// the VLAN tag table, the bitmask of VLAN-enabled interfaces and the
// enabled count.  A context is created at interface attach time and
// lives as long as the interface.
//
// VLANEnable, VLANDisable and Init mutate the context and must be
// serialized by the caller against each other; Recv and Send only
// perform atomic reads of the enabled state and are safe to run
// concurrently with them.
type Context struct {
	logger log.Logger
	arp    ARP
	lookup AddrLookup

	vlan        [VLANMaxCount]vlanEntry
	ifaceBits   uint64
	vlanEnabled int32
	isInit      bool
}

// NewContext returns a link-layer context using the supplied
// collaborators.  arp and lookup may be nil, disabling ARP dispatch
// and VLAN source steering respectively.  A nil logger suppresses
// diagnostics.
func NewContext(logger log.Logger, arp ARP, lookup AddrLookup) *Context {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Context{
		logger: logger,
		arp:    arp,
		lookup: lookup,
	}
}

// Reserve returns the link-header length the interface layer must
// reserve as headroom when allocating transmit buffers for iface.
func (ctx *Context) Reserve(iface Interface) int {
	if ctx.IsVLANEnabled(iface) {
		return VLANHeaderLen
	}
	return HeaderLen
}

// Enable is called when the interface is brought up or down.  Taking
// an interface down invalidates the whole ARP cache, not just the
// entries learned on that interface.
func (ctx *Context) Enable(iface Interface, state bool) error {
	if !state && ctx.arp != nil {
		ctx.arp.ClearCache()
	}
	return nil
}

// Init prepares the context for iface.  If the device lacks hardware
// VLAN support the context is left untouched and the VLAN management
// operations will fail with ErrNotInitialized.  Otherwise the first
// free VLAN table slot is claimed for iface with an unspecified tag,
// and on the first initialization the enabled-interface bitmask is
// cleared.
func (ctx *Context) Init(iface Interface) {
	if iface.Capabilities()&CapHWVLAN == 0 {
		return
	}

	level.Debug(ctx.logger).Log(
		"message", "initializing Ethernet L2",
		"iface", iface.Index())

	for i := range ctx.vlan {
		if ctx.vlan[i].iface == nil {
			ctx.vlan[i].tag = packet.TagUnspec
			ctx.vlan[i].iface = iface

			if !ctx.isInit {
				clearIfaceBits(&ctx.ifaceBits)
			}

			break
		}
	}

	ctx.isInit = true
}
