// Command ethdump replays the frames of a pcap capture file through
// the Ethernet receive pipeline, printing the pipeline verdict for
// each frame beside a protocol decode of its contents.  It is a
// development aid for inspecting how the link layer classifies and
// filters captured traffic.
package main

import (
	"flag"
	"fmt"
	stdlog "log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/ethlab/go-ethl2/arp"
	"github.com/ethlab/go-ethl2/ethernet"
	"github.com/ethlab/go-ethl2/packet"
)

// dumpIface is a stand-in interface: frames "transmitted" on it (for
// example ARP replies generated by the resolver) are printed rather
// than sent anywhere.
type dumpIface struct {
	hwaddr [6]byte
	ipv4   net.IP
}

func (i *dumpIface) Index() int                        { return 1 }
func (i *dumpIface) LinkAddr() []byte                  { return i.hwaddr[:] }
func (i *dumpIface) L2() ethernet.L2Type               { return ethernet.L2TypeEthernet }
func (i *dumpIface) Capabilities() ethernet.DeviceCaps { return ethernet.CapHWVLAN }
func (i *dumpIface) IPv4(packet.Interface) net.IP      { return i.ipv4 }

func (i *dumpIface) QueueTx(pkt *packet.Packet) {
	for frag := pkt.Frags; frag != nil; frag = frag.Next {
		frame, err := frag.Frame(pkt.LLReserve())
		if err != nil {
			continue
		}
		dec := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
		fmt.Printf("  tx: %s\n", oneLine(dec))
	}
	pkt.Unref()
}

// oneLine renders a decoded frame as a single line of layer names
// with the link and network endpoints.
func oneLine(dec gopacket.Packet) string {
	var names []string
	for _, layer := range dec.Layers() {
		names = append(names, layer.LayerType().String())
	}
	s := strings.Join(names, "/")
	if link := dec.LinkLayer(); link != nil {
		src, dst := link.LinkFlow().Endpoints()
		s += fmt.Sprintf(" %v > %v", src, dst)
	}
	if network := dec.NetworkLayer(); network != nil {
		src, dst := network.NetworkFlow().Endpoints()
		s += fmt.Sprintf(" %v > %v", src, dst)
	}
	return s
}

func parseTags(s string) (tags []uint16, err error) {
	if s == "" {
		return nil, nil
	}
	for _, t := range strings.Split(s, ",") {
		tag, err := strconv.ParseUint(strings.TrimSpace(t), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad VLAN tag '%s': %v", t, err)
		}
		tags = append(tags, uint16(tag))
	}
	return
}

func main() {
	filePtr := flag.String("file", "", "pcap capture file to replay")
	addrPtr := flag.String("addr", "", "hardware address to present as the receiving interface")
	ipv4Ptr := flag.String("ipv4", "", "IPv4 address to answer ARP requests for")
	vlanPtr := flag.String("vlan", "", "comma-separated VLAN tags to enable")
	verbosePtr := flag.Bool("verbose", false, "dump decoded frames in full")
	flag.Parse()

	if *filePtr == "" {
		stdlog.Fatalf("no capture file specified")
	}

	iface := &dumpIface{}
	if *addrPtr != "" {
		mac, err := net.ParseMAC(*addrPtr)
		if err != nil || len(mac) != 6 {
			stdlog.Fatalf("bad hardware address '%s'", *addrPtr)
		}
		copy(iface.hwaddr[:], mac)
	}
	if *ipv4Ptr != "" {
		ip := net.ParseIP(*ipv4Ptr)
		if ip == nil || ip.To4() == nil {
			stdlog.Fatalf("bad IPv4 address '%s'", *ipv4Ptr)
		}
		iface.ipv4 = ip.To4()
	}

	tags, err := parseTags(*vlanPtr)
	if err != nil {
		stdlog.Fatalf("%v", err)
	}

	logger := level.NewFilter(log.NewLogfmtLogger(os.Stderr), level.AllowInfo())
	if *verbosePtr {
		logger = level.NewFilter(log.NewLogfmtLogger(os.Stderr), level.AllowDebug())
	}

	resolver := arp.NewResolver(logger, iface)
	ctx := ethernet.NewContext(logger, resolver, nil)
	ctx.Init(iface)

	for _, tag := range tags {
		if err := ctx.VLANEnable(iface, tag); err != nil {
			stdlog.Fatalf("failed to enable VLAN %d: %v", tag, err)
		}
	}

	f, err := os.Open(*filePtr)
	if err != nil {
		stdlog.Fatalf("failed to open capture: %v", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		stdlog.Fatalf("failed to read capture: %v", err)
	}

	var n int
	for {
		data, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		n++

		dec := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

		pkt := packet.New()
		pkt.Frags = packet.NewBufFrom(data, 0)

		verdict := ctx.Recv(iface, pkt)

		fmt.Printf("%4d %-8s %s\n", n, verdict, oneLine(dec))
		if *verbosePtr {
			fmt.Print(dec.Dump())
		}

		pkt.Unref()
	}
}
