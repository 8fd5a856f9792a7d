/*
Package rtvlan speaks rtnetlink to the Linux kernel to create and
delete 802.1Q VLAN subinterfaces.  It backs the Ethernet link layer's
driver VLAN-setup hook when running over real kernel interfaces.
*/
package rtvlan

import (
	"fmt"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"
)

// Conn is a NETLINK_ROUTE connection to the kernel.
type Conn struct {
	c *netlink.Conn
}

// Dial opens a new rtnetlink connection to the kernel.
func Dial() (*Conn, error) {
	c, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// Close closes the connection, releasing associated resources.
func (c *Conn) Close() {
	c.c.Close()
}

// ifInfoMsg renders a struct ifinfomsg for the link messages.
func ifInfoMsg(index int32) []byte {
	// family(1) + pad(1) + type(2) + index(4) + flags(4) + change(4)
	b := make([]byte, 16)
	b[0] = unix.AF_UNSPEC
	nlenc.PutInt32(b[4:8], index)
	return b
}

// VLANName returns the conventional name of a VLAN subinterface: the
// parent name suffixed with the VLAN identifier.
func VLANName(parent string, tag uint16) string {
	return fmt.Sprintf("%s.%d", parent, tag)
}

// CreateVLAN creates a kernel VLAN subinterface carrying tag over the
// parent link, named per VLANName.
func (c *Conn) CreateVLAN(parentIndex int, parent string, tag uint16) (name string, err error) {
	name = VLANName(parent, tag)

	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.IFLA_LINK, uint32(parentIndex))
	ae.String(unix.IFLA_IFNAME, name)
	ae.Nested(unix.IFLA_LINKINFO, func(nae *netlink.AttributeEncoder) error {
		nae.String(unix.IFLA_INFO_KIND, "vlan")
		nae.Nested(unix.IFLA_INFO_DATA, func(dae *netlink.AttributeEncoder) error {
			dae.Uint16(unix.IFLA_VLAN_ID, tag)
			return nil
		})
		return nil
	})

	attrs, err := ae.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode link attributes: %v", err)
	}

	req := netlink.Message{
		Header: netlink.Header{
			Type: netlink.HeaderType(unix.RTM_NEWLINK),
			Flags: netlink.Request | netlink.Acknowledge |
				netlink.Create | netlink.Excl,
		},
		Data: append(ifInfoMsg(0), attrs...),
	}

	if _, err = c.c.Execute(req); err != nil {
		return "", fmt.Errorf("failed to create VLAN link %s: %v", name, err)
	}

	return name, nil
}

// DeleteVLAN removes the kernel VLAN subinterface carrying tag over
// the parent link.
func (c *Conn) DeleteVLAN(parent string, tag uint16) error {
	name := VLANName(parent, tag)

	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, name)

	attrs, err := ae.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode link attributes: %v", err)
	}

	req := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(unix.RTM_DELLINK),
			Flags: netlink.Request | netlink.Acknowledge,
		},
		Data: append(ifInfoMsg(0), attrs...),
	}

	if _, err = c.c.Execute(req); err != nil {
		return fmt.Errorf("failed to delete VLAN link %s: %v", name, err)
	}

	return nil
}
