package ethernet

import (
	"net"
	"testing"

	"github.com/ethlab/go-ethl2/packet"
)

func TestVLANEnableDisableErrors(t *testing.T) {
	iface := newTestIface(1, ourAddr)
	foreign := newTestIface(2, otherAddr)
	foreign.l2 = L2TypeNone

	ctx := NewContext(nil, nil, nil)

	// Nothing works before Init has run.
	if err := ctx.VLANEnable(iface, 7); err != ErrNotInitialized {
		t.Errorf("enable before init: expected ErrNotInitialized, got %v", err)
	}

	ctx.Init(iface)

	if err := ctx.VLANEnable(foreign, 7); err != ErrInvalidInterface {
		t.Errorf("enable on non-Ethernet interface: expected ErrInvalidInterface, got %v", err)
	}
	if err := ctx.VLANEnable(iface, packet.TagUnspec); err != ErrInvalidTag {
		t.Errorf("enable with sentinel tag: expected ErrInvalidTag, got %v", err)
	}

	if err := ctx.VLANEnable(iface, 7); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := ctx.VLANEnable(iface, 7); err != ErrVLANExists {
		t.Errorf("duplicate enable: expected ErrVLANExists, got %v", err)
	}

	// The context only holds one slot for this interface, so a
	// second tag finds no free slot.
	if err := ctx.VLANEnable(iface, 8); err != ErrNoCapacity {
		t.Errorf("enable without free slot: expected ErrNoCapacity, got %v", err)
	}

	if err := ctx.VLANDisable(foreign, 7); err != ErrInvalidInterface {
		t.Errorf("disable on non-Ethernet interface: expected ErrInvalidInterface, got %v", err)
	}
	if err := ctx.VLANDisable(iface, packet.TagUnspec); err != ErrInvalidTag {
		t.Errorf("disable with sentinel tag: expected ErrInvalidTag, got %v", err)
	}
	if err := ctx.VLANDisable(iface, 7); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := ctx.VLANDisable(iface, 7); err != ErrVLANNotFound {
		t.Errorf("double disable: expected ErrVLANNotFound, got %v", err)
	}
}

func TestIsVLANEnabled(t *testing.T) {
	iface := newTestIface(1, ourAddr)
	other := newTestIface(2, otherAddr)

	ctx := NewContext(nil, nil, nil)
	ctx.Init(iface)
	ctx.Init(other)

	if ctx.IsVLANEnabled(iface) {
		t.Error("VLAN must be disabled before any enable call")
	}

	if err := ctx.VLANEnable(iface, 100); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if !ctx.IsVLANEnabled(iface) {
		t.Error("VLAN must be enabled for the enabled interface")
	}
	if ctx.IsVLANEnabled(other) {
		t.Error("VLAN must remain disabled for other interfaces")
	}

	if err := ctx.VLANDisable(iface, 100); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if ctx.IsVLANEnabled(iface) {
		t.Error("VLAN must be disabled again after disable")
	}
}

func TestVLANSetupHook(t *testing.T) {
	iface := &hookIface{testIface: newTestIface(1, ourAddr)}

	ctx := NewContext(nil, nil, nil)
	ctx.Init(iface)

	if err := ctx.VLANEnable(iface, 42); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := ctx.VLANDisable(iface, 42); err != nil {
		t.Fatalf("disable: %v", err)
	}

	want := []hookCall{{tag: 42, enable: true}, {tag: 42, enable: false}}
	if len(iface.calls) != len(want) {
		t.Fatalf("expected %d hook calls, got %d", len(want), len(iface.calls))
	}
	for i, c := range want {
		if iface.calls[i] != c {
			t.Errorf("hook call %d: expected %+v, got %+v", i, c, iface.calls[i])
		}
	}
}

func TestVLANIface(t *testing.T) {
	tagged := newTestIface(1, ourAddr)
	plain := newTestIface(2, otherAddr)

	ctx := NewContext(nil, nil, nil)

	if got := ctx.VLANIface(100); got != nil {
		t.Errorf("empty table must yield no interface, got %v", got)
	}

	ctx.Init(tagged)
	ctx.Init(plain)

	if err := ctx.VLANEnable(tagged, 100); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if got := ctx.VLANIface(100); got != Interface(tagged) {
		t.Errorf("expected tagged interface for tag 100, got %v", got)
	}

	// A tag with no binding falls back to the first interface with a
	// free slot, which serves untagged traffic.
	if got := ctx.VLANIface(200); got != Interface(plain) {
		t.Errorf("expected untagged fallback interface, got %v", got)
	}
}

func TestVLANTagFor(t *testing.T) {
	iface := newTestIface(1, ourAddr)
	stranger := newTestIface(9, otherAddr)

	ctx := NewContext(nil, nil, nil)
	ctx.Init(iface)

	if got := ctx.VLANTagFor(iface); got != packet.TagUnspec {
		t.Errorf("expected unspecified tag before enable, got %d", got)
	}

	if err := ctx.VLANEnable(iface, 300); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if got := ctx.VLANTagFor(iface); got != 300 {
		t.Errorf("expected tag 300, got %d", got)
	}
	if got := ctx.VLANTagFor(stranger); got != packet.TagUnspec {
		t.Errorf("expected unspecified tag for unknown interface, got %d", got)
	}
}

func TestResolveVLANTag(t *testing.T) {
	iface := newTestIface(1, ourAddr)

	ctx := NewContext(nil, nil, nil)
	ctx.Init(iface)
	if err := ctx.VLANEnable(iface, 100); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// A concrete tag on the packet short-circuits resolution.
	pkt := txPacket(iface, packet.FamilyIPv4, buildIPv4Header(20, net.IPv4(192, 0, 2, 1), net.IPv4(192, 0, 2, 2)))
	pkt.SetVLANTag(55)
	if err := ctx.resolveVLANTag(iface, pkt); err != nil {
		t.Fatalf("resolve with concrete tag: %v", err)
	}
	if pkt.VLANTag() != 55 {
		t.Errorf("concrete tag must be preserved, got %d", pkt.VLANTag())
	}

	// An unspecified tag picks up the interface's binding.
	pkt = txPacket(iface, packet.FamilyIPv4, buildIPv4Header(20, net.IPv4(192, 0, 2, 1), net.IPv4(192, 0, 2, 2)))
	if err := ctx.resolveVLANTag(iface, pkt); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pkt.VLANTag() != 100 {
		t.Errorf("expected resolved tag 100, got %d", pkt.VLANTag())
	}
}

func TestResolveVLANTagNoRoute(t *testing.T) {
	iface := newTestIface(1, ourAddr)

	ctx := NewContext(nil, nil, nil)
	ctx.Init(iface)

	pkt := txPacket(iface, packet.FamilyIPv4, buildIPv4Header(20, net.IPv4(192, 0, 2, 1), net.IPv4(192, 0, 2, 2)))
	if err := ctx.resolveVLANTag(iface, pkt); err != ErrNoVLANRoute {
		t.Errorf("expected ErrNoVLANRoute, got %v", err)
	}
}

func TestResolveVLANTagSourceSteering(t *testing.T) {
	selected := newTestIface(1, ourAddr)
	owner := newTestIface(2, otherAddr)

	lookup := &testLookup{v4: map[string]Interface{"192.0.2.1": owner}}

	ctx := NewContext(nil, nil, lookup)
	ctx.Init(selected)
	ctx.Init(owner)
	if err := ctx.VLANEnable(owner, 200); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// The packet's source address belongs to a different interface,
	// so its VLAN binding wins over the initially selected interface.
	pkt := txPacket(selected, packet.FamilyIPv4, buildIPv4Header(20, net.IPv4(192, 0, 2, 1), net.IPv4(192, 0, 2, 99)))
	if err := ctx.resolveVLANTag(selected, pkt); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if pkt.VLANTag() != 200 {
		t.Errorf("expected steered tag 200, got %d", pkt.VLANTag())
	}
}

func TestSetVLANPriority(t *testing.T) {
	pkt := packet.New()
	pkt.SetPriority(5)
	setVLANPriority(pkt)
	if pkt.VLANPriority() != 5 {
		t.Errorf("expected VLAN priority 5, got %d", pkt.VLANPriority())
	}
}
