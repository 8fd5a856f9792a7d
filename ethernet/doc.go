/*
Package ethernet implements the Ethernet link-layer adaptation for a
network stack: it turns raw link-layer frames into network-layer
packets on receive, and turns outgoing network-layer packets into
properly addressed, optionally VLAN-tagged Ethernet frames on
transmit.

Headers are overlaid in place over headroom reserved in the shared
packet buffers of package packet, so no frame data is copied when
moving between layers.

A Context holds the link-layer state for one physical interface,
including the VLAN tag table which lets logical (VLAN) interfaces
multiplex over it.  The surrounding interface layer drives the
context through a handful of entry points:

  - Recv classifies and filters an inbound frame, strips its link
    header, and dispatches ARP payloads to the resolver.
  - Send resolves link addresses (via ARP for IPv4 unicast) and VLAN
    tagging, fills a header onto every fragment, and enqueues the
    packet for transmission.
  - Reserve reports the headroom transmit buffers need for iface.
  - Enable reacts to interface up/down transitions.
  - Init claims VLAN table state for a VLAN-capable interface.
  - VLANEnable and VLANDisable manage the per-interface VLAN tag
    bindings.

The context performs no internal locking beyond atomic reads of the
VLAN-enabled state; callers must serialize the management operations
against each other the same way they serialize other interface state
changes.

Address resolution itself, interface registration and packet buffer
allocation are consumed through the ARP, Interface and AddrLookup
contracts rather than implemented here.
*/
package ethernet
