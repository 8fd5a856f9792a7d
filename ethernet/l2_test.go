package ethernet

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/ethlab/go-ethl2/packet"
)

type testIface struct {
	index int
	addr  [6]byte
	caps  DeviceCaps
	l2    L2Type
	txed  []*packet.Packet
}

func newTestIface(index int, addr [6]byte) *testIface {
	return &testIface{
		index: index,
		addr:  addr,
		caps:  CapHWVLAN,
		l2:    L2TypeEthernet,
	}
}

func (i *testIface) Index() int               { return i.index }
func (i *testIface) LinkAddr() []byte         { return i.addr[:] }
func (i *testIface) L2() L2Type               { return i.l2 }
func (i *testIface) Capabilities() DeviceCaps { return i.caps }
func (i *testIface) QueueTx(p *packet.Packet) { i.txed = append(i.txed, p) }

// hookIface records driver VLAN setup hook invocations.
type hookIface struct {
	*testIface
	calls []hookCall
}

type hookCall struct {
	tag    uint16
	enable bool
}

func (i *hookIface) VLANSetup(tag uint16, enable bool) error {
	i.calls = append(i.calls, hookCall{tag: tag, enable: enable})
	return nil
}

// testLookup steers VLAN resolution by source address.
type testLookup struct {
	v4 map[string]Interface
	v6 map[string]Interface
}

func (l *testLookup) FindV4(ip net.IP) Interface { return l.v4[ip.String()] }
func (l *testLookup) FindV6(ip net.IP) Interface { return l.v6[ip.String()] }

// testARP scripts the resolver collaborator.
type testARP struct {
	inputVerdict Verdict
	inputPkts    []*packet.Packet
	preparePkt   *packet.Packet
	prepareSame  bool
	cleared      int
}

func (a *testARP) Input(p *packet.Packet) Verdict {
	a.inputPkts = append(a.inputPkts, p)
	return a.inputVerdict
}

func (a *testARP) Prepare(p *packet.Packet) *packet.Packet {
	if a.prepareSame {
		return p
	}
	return a.preparePkt
}

func (a *testARP) ClearCache() { a.cleared++ }

func buildFrame(dst, src [6]byte, etherType uint16, payload []byte) []byte {
	b := make([]byte, HeaderLen+len(payload))
	copy(b[0:6], dst[:])
	copy(b[6:12], src[:])
	binary.BigEndian.PutUint16(b[12:14], etherType)
	copy(b[HeaderLen:], payload)
	return b
}

func buildVLANFrame(dst, src [6]byte, tci uint16, etherType uint16, payload []byte) []byte {
	b := make([]byte, VLANHeaderLen+len(payload))
	copy(b[0:6], dst[:])
	copy(b[6:12], src[:])
	binary.BigEndian.PutUint16(b[12:14], TypeVLAN)
	binary.BigEndian.PutUint16(b[14:16], tci)
	binary.BigEndian.PutUint16(b[16:18], etherType)
	copy(b[VLANHeaderLen:], payload)
	return b
}

// buildIPv4Header renders a minimal IPv4 header declaring the given
// total length.
func buildIPv4Header(totalLen int, src, dst net.IP) []byte {
	h := make([]byte, 20)
	h[0] = 0x45
	binary.BigEndian.PutUint16(h[2:4], uint16(totalLen))
	h[8] = 64
	h[9] = 17
	copy(h[12:16], src.To4())
	copy(h[16:20], dst.To4())
	return h
}

// buildIPv4Payload renders an IPv4 packet padded out to padTo bytes,
// as an Ethernet sender would pad a short frame.
func buildIPv4Payload(dataLen, padTo int, src, dst net.IP) []byte {
	p := make([]byte, padTo)
	copy(p, buildIPv4Header(20+dataLen, src, dst))
	return p
}

func rxPacket(frame []byte) *packet.Packet {
	pkt := packet.New()
	pkt.Frags = packet.NewBufFrom(frame, 0)
	return pkt
}

// txPacket builds an outbound packet whose single fragment holds
// payload with headroom for a VLAN header.
func txPacket(iface Interface, family packet.Family, payload []byte) *packet.Packet {
	pkt := packet.New()
	pkt.SetFamily(family)
	pkt.SetIface(iface)
	pkt.SetLLReserve(HeaderLen)
	pkt.Frags = packet.NewBufFrom(payload, VLANHeaderLen)
	return pkt
}

var (
	ourAddr   = [6]byte{0x02, 0x00, 0x5e, 0x01, 0x02, 0x03}
	peerAddr  = [6]byte{0x02, 0x00, 0x5e, 0x0a, 0x0b, 0x0c}
	otherAddr = [6]byte{0x02, 0x00, 0x5e, 0xaa, 0xbb, 0xcc}
	bcastAddr = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

func TestReserve(t *testing.T) {
	iface := newTestIface(1, ourAddr)
	ctx := NewContext(nil, nil, nil)
	ctx.Init(iface)

	if got := ctx.Reserve(iface); got != HeaderLen {
		t.Errorf("expected plain header reserve %d before enable, got %d", HeaderLen, got)
	}

	if err := ctx.VLANEnable(iface, 100); err != nil {
		t.Fatalf("VLANEnable: %v", err)
	}

	if got := ctx.Reserve(iface); got != VLANHeaderLen {
		t.Errorf("expected VLAN header reserve %d after enable, got %d", VLANHeaderLen, got)
	}

	if err := ctx.VLANDisable(iface, 100); err != nil {
		t.Fatalf("VLANDisable: %v", err)
	}

	if got := ctx.Reserve(iface); got != HeaderLen {
		t.Errorf("expected plain header reserve %d after disable, got %d", HeaderLen, got)
	}
}

func TestInitWithoutHWVLAN(t *testing.T) {
	iface := newTestIface(1, ourAddr)
	iface.caps = 0

	ctx := NewContext(nil, nil, nil)
	ctx.Init(iface)

	if err := ctx.VLANEnable(iface, 100); err != ErrNotInitialized {
		t.Errorf("expected ErrNotInitialized for device without VLAN capability, got %v", err)
	}
}

func TestEnableClearsARPCacheOnDown(t *testing.T) {
	iface := newTestIface(1, ourAddr)
	resolver := &testARP{}
	ctx := NewContext(nil, resolver, nil)
	ctx.Init(iface)

	if err := ctx.Enable(iface, true); err != nil {
		t.Fatalf("Enable(up): %v", err)
	}
	if resolver.cleared != 0 {
		t.Errorf("bringing an interface up must not clear the ARP cache")
	}

	if err := ctx.Enable(iface, false); err != nil {
		t.Fatalf("Enable(down): %v", err)
	}
	if resolver.cleared != 1 {
		t.Errorf("expected ARP cache clear on interface down, got %d calls", resolver.cleared)
	}
}
