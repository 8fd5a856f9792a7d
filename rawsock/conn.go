/*
Package rawsock provides raw AF_PACKET connections for sending and
receiving Ethernet frames on a Linux network interface.  It exists so
the link layer can be run against real hardware; the protocol code in
package ethernet does not depend on it.
*/
package rawsock

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Conn is a raw Ethernet connection bound to one network interface.
type Conn struct {
	iface *net.Interface
	fd    int
	file  *os.File
	rc    syscall.RawConn
}

// hostToNet16 converts a 16 bit protocol number to the network byte
// order representation expected by AF_PACKET socket addresses.
func hostToNet16(v uint16) uint16 {
	return v<<8 | v>>8
}

func newRawSocket(protocol uint16) (fd int, err error) {

	// raw socket since we want to read/write link-level frames
	fd, err = unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(hostToNet16(protocol)))
	if err != nil {
		return -1, fmt.Errorf("socket: %v", err)
	}

	// make the socket nonblocking so we can use it with the runtime poller
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to set socket nonblocking: %v", err)
	}

	// set the socket CLOEXEC to prevent passing it to child processes
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("fcntl(F_GETFD): %v", err)
	}

	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("fcntl(F_SETFD, FD_CLOEXEC): %v", err)
	}

	// allow broadcast
	err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_BROADCAST): %v", err)
	}

	return
}

// NewConn opens a raw Ethernet connection on the named interface for
// the given protocol number in host byte order; unix.ETH_P_ALL
// receives every frame on the interface.
func NewConn(ifname string, protocol uint16) (conn *Conn, err error) {

	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain details of interface \"%s\": %v", ifname, err)
	}

	fd, err := newRawSocket(protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to create raw socket: %v", err)
	}

	// bind to the interface specified
	sa := unix.SockaddrLinklayer{
		Protocol: hostToNet16(protocol),
		Ifindex:  iface.Index,
	}
	err = unix.Bind(fd, &sa)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind socket: %v", err)
	}

	// register the socket with the runtime
	file := os.NewFile(uintptr(fd), "ethernet")
	rc, err := file.SyscallConn()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Conn{
		iface: iface,
		fd:    fd,
		file:  file,
		rc:    rc,
	}, nil
}

// Close closes the connection, releasing the underlying socket.
func (c *Conn) Close() (err error) {
	if c.file != nil {
		err = c.file.Close()
		c.file = nil
	}
	return
}

// Send transmits a complete Ethernet frame on the interface.
func (c *Conn) Send(b []byte) (n int, err error) {
	return c.file.Write(b)
}

// Recv receives one Ethernet frame from the interface.
func (c *Conn) Recv(b []byte) (n int, err error) {
	return c.file.Read(b)
}

// Interface returns the network interface the connection is bound to.
func (c *Conn) Interface() *net.Interface {
	return c.iface
}

// HWAddr returns the hardware address of the connection's interface.
func (c *Conn) HWAddr() (addr [6]byte) {
	if len(c.iface.HardwareAddr) >= 6 {
		copy(addr[:], c.iface.HardwareAddr)
	}
	return
}
