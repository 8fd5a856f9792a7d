package main

import (
	"flag"
	"fmt"
	stdlog "log"
	"net"
	"os"
	"os/signal"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sys/unix"

	"github.com/ethlab/go-ethl2/arp"
	"github.com/ethlab/go-ethl2/config"
	"github.com/ethlab/go-ethl2/ethernet"
	"github.com/ethlab/go-ethl2/internal/rtvlan"
	"github.com/ethlab/go-ethl2/packet"
	"github.com/ethlab/go-ethl2/rawsock"
)

// netIface adapts a raw socket bound to a kernel interface to the
// link layer's interface contract.
type netIface struct {
	name   string
	index  int
	hwaddr [6]byte
	caps   ethernet.DeviceCaps
	ipv4   net.IP
	conn   *rawsock.Conn
	vlans  *rtvlan.Conn
	logger log.Logger
	ctx    *ethernet.Context
}

func (i *netIface) Index() int {
	return i.index
}

func (i *netIface) LinkAddr() []byte {
	return i.hwaddr[:]
}

func (i *netIface) L2() ethernet.L2Type {
	return ethernet.L2TypeEthernet
}

func (i *netIface) Capabilities() ethernet.DeviceCaps {
	return i.caps
}

func (i *netIface) QueueTx(pkt *packet.Packet) {
	// Each fragment is a self-contained frame once the link layer has
	// filled its header.
	for frag := pkt.Frags; frag != nil; frag = frag.Next {
		frame, err := frag.Frame(pkt.LLReserve())
		if err != nil {
			level.Error(i.logger).Log("message", "malformed transmit fragment", "error", err)
			continue
		}
		if _, err := i.conn.Send(frame); err != nil {
			level.Error(i.logger).Log("message", "transmit failed", "error", err)
		}
	}
	pkt.Unref()
}

func (i *netIface) VLANSetup(tag uint16, enable bool) error {
	if i.vlans == nil {
		return nil
	}
	if enable {
		_, err := i.vlans.CreateVLAN(i.index, i.name, tag)
		return err
	}
	return i.vlans.DeleteVLAN(i.name, tag)
}

// addrBook is the interface registry: it locates interfaces by their
// assigned addresses for the ARP resolver and for VLAN source
// steering.
type addrBook struct {
	ifaces []*netIface
}

func (b *addrBook) IPv4(iface packet.Interface) net.IP {
	for _, i := range b.ifaces {
		if i.index == iface.Index() {
			return i.ipv4
		}
	}
	return nil
}

func (b *addrBook) FindV4(ip net.IP) ethernet.Interface {
	for _, i := range b.ifaces {
		if i.ipv4 != nil && i.ipv4.Equal(ip) {
			return i
		}
	}
	return nil
}

func (b *addrBook) FindV6(ip net.IP) ethernet.Interface {
	// IPv6 addresses are not configurable yet.
	return nil
}

type rxFrame struct {
	iface *netIface
	data  []byte
}

type application struct {
	config    *config.Config
	logger    log.Logger
	ifaces    []*netIface
	resolver  *arp.Resolver
	sigChan   chan os.Signal
	rxChan    chan rxFrame
	closeChan chan interface{}
}

func newApplication(cfg *config.Config, verbose bool) (app *application, err error) {
	app = &application{
		config:    cfg,
		sigChan:   make(chan os.Signal, 1),
		rxChan:    make(chan rxFrame),
		closeChan: make(chan interface{}),
	}

	signal.Notify(app.sigChan, unix.SIGINT, unix.SIGTERM)

	logger := log.NewLogfmtLogger(os.Stderr)
	if verbose {
		app.logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		app.logger = level.NewFilter(logger, level.AllowInfo())
	}

	// The rtnetlink connection is shared by every interface; VLAN
	// subinterface management degrades to a no-op without it.
	vlans, err := rtvlan.Dial()
	if err != nil {
		level.Info(app.logger).Log(
			"message", "rtnetlink unavailable, kernel VLAN links will not be managed",
			"error", err)
		vlans = nil
	}

	book := &addrBook{}
	app.resolver = arp.NewResolver(log.With(app.logger, "subsystem", "arp"), book)

	for _, icfg := range cfg.Interfaces {
		conn, err := rawsock.NewConn(icfg.Name, unix.ETH_P_ALL)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %v", icfg.Name, err)
		}

		iface := &netIface{
			name:   icfg.Name,
			index:  conn.Interface().Index,
			hwaddr: conn.HWAddr(),
			ipv4:   icfg.IPv4,
			conn:   conn,
			vlans:  vlans,
			logger: log.With(app.logger, "iface", icfg.Name),
		}
		if icfg.HWVLAN {
			iface.caps |= ethernet.CapHWVLAN
		}

		iface.ctx = ethernet.NewContext(iface.logger, app.resolver, book)
		iface.ctx.Init(iface)
		if err = iface.ctx.Enable(iface, true); err != nil {
			return nil, fmt.Errorf("failed to enable %s: %v", icfg.Name, err)
		}

		for _, tag := range icfg.VLANTags {
			if err = iface.ctx.VLANEnable(iface, tag); err != nil {
				return nil, fmt.Errorf("failed to enable VLAN %d on %s: %v",
					tag, icfg.Name, err)
			}
		}

		book.ifaces = append(book.ifaces, iface)
		app.ifaces = append(app.ifaces, iface)
	}

	return
}

func (app *application) handleFrame(iface *netIface, data []byte) {
	pkt := packet.New()
	pkt.Frags = packet.NewBufFrom(data, 0)

	verdict := iface.ctx.Recv(iface, pkt)

	switch verdict {
	case ethernet.VerdictContinue:
		// No network layer is attached; account for the packet and
		// release it.
		level.Debug(iface.logger).Log(
			"message", "frame accepted",
			"family", pkt.Family(),
			"len", pkt.TotalLen())
		pkt.Unref()
	case ethernet.VerdictOK:
		// Consumed by the ARP resolver.
		pkt.Unref()
	case ethernet.VerdictDrop:
		pkt.Unref()
	}
}

func (app *application) run() int {
	var wg sync.WaitGroup
	var shutdown sync.Once

	// stop tears the application down exactly once: receive
	// goroutines unblock via closeChan, and closing the raw
	// connections fails any Recv still in flight.
	stop := func() {
		shutdown.Do(func() {
			close(app.closeChan)
			for _, iface := range app.ifaces {
				iface.ctx.Enable(iface, false)
				iface.conn.Close()
			}
		})
	}

	for _, iface := range app.ifaces {
		wg.Add(1)
		go func(iface *netIface) {
			defer wg.Done()
			for {
				buf := make([]byte, 9216)
				n, err := iface.conn.Recv(buf)
				if err != nil {
					select {
					case <-app.closeChan:
					default:
						level.Error(iface.logger).Log(
							"message", "recv on raw connection failed",
							"error", err)
					}
					return
				}
				select {
				case app.rxChan <- rxFrame{iface: iface, data: buf[:n]}:
				case <-app.closeChan:
					return
				}
			}
		}(iface)
	}

	// rxChan is closed once every receive goroutine has exited, so
	// producers never send on a closed channel.
	go func() {
		wg.Wait()
		close(app.rxChan)
	}()

	for {
		select {
		case <-app.sigChan:
			level.Info(app.logger).Log("message", "received signal, shutting down")
			stop()
		case rx, ok := <-app.rxChan:
			if !ok {
				stop()
				return 0
			}
			app.handleFrame(rx.iface, rx.data)
		}
	}
}

func main() {
	cfgPathPtr := flag.String("config", "/etc/ethl2d/ethl2d.toml", "specify configuration file path")
	verbosePtr := flag.Bool("verbose", false, "toggle verbose log output")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPathPtr)
	if err != nil {
		stdlog.Fatalf("failed to load configuration: %v", err)
	}

	if len(cfg.Interfaces) == 0 {
		stdlog.Fatalf("no interfaces called out in the configuration file")
	}

	app, err := newApplication(cfg, *verbosePtr)
	if err != nil {
		stdlog.Fatalf("failed to instantiate application: %v", err)
	}

	os.Exit(app.run())
}
