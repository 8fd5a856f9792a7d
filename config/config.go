/*
Package config implements a parser for Ethernet link-layer
configuration represented in the TOML format:
https://github.com/toml-lang/toml.

Interface instances are called out in the configuration file using
named TOML tables.  Each interface instance table contains
configuration parameters for that instance as key:value pairs.

	# This is an interface instance for device "eth0"
	[interface.eth0]

	# hw_vlan declares that the device supports VLAN tagging in
	# hardware.  VLAN tags can only be enabled on interfaces which
	# declare the capability.
	hw_vlan = true

	# vlan_tags lists the 802.1Q VLAN identifiers to enable on the
	# interface at startup.  Valid identifiers are in the range
	# 1 - 4094.
	vlan_tags = [100, 200]

	# ipv4 optionally assigns an IPv4 address to the interface.  The
	# address is used to answer ARP requests and to fill the sender
	# fields of generated ARP packets.
	ipv4 = "192.0.2.10"
*/
package config

import (
	"fmt"
	"net"

	"github.com/pelletier/go-toml"
)

// Config contains the link-layer configuration for a set of
// interfaces.
type Config struct {
	// The entire tree as a map as parsed from the TOML representation.
	// Apps may access this tree to handle their own config tables.
	Map map[string]interface{}
	// All the interfaces defined in the configuration.
	Interfaces []NamedInterface
}

// NamedInterface contains the link-layer configuration for one
// interface instance.
type NamedInterface struct {
	// The interface's device name as specified in the config file.
	Name string
	// Whether the device claims hardware VLAN capability.
	HWVLAN bool
	// The VLAN identifiers to enable on the interface.
	VLANTags []uint16
	// The interface's IPv4 address, nil when unset.
	IPv4 net.IP
}

func toBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("supplied value could not be parsed as a bool")
}

func toString(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("supplied value could not be parsed as a string")
}

// go-toml's ToMap function represents numbers as either uint64 or
// int64, so we need to figure out which one it has picked and range
// check to ensure the number fits the destination type.
func toUint16(v interface{}) (uint16, error) {
	if b, ok := v.(int64); ok {
		if b < 0x0 || b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	} else if b, ok := v.(uint64); ok {
		if b > 0xffff {
			return 0, fmt.Errorf("value %x out of range", b)
		}
		return uint16(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toVLANTags(v interface{}) ([]uint16, error) {
	var out []uint16

	// First ensure that the supplied value is actually an array
	tags, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array value")
	}

	// TOML arrays can be mixed type, so we have to check on a
	// value-by-value basis that each value can be represented as a
	// VLAN identifier.
	for _, t := range tags {
		tag, err := toUint16(t)
		if err != nil {
			return nil, err
		}
		if tag == 0 || tag > 4094 {
			return nil, fmt.Errorf("VLAN identifier %d out of range", tag)
		}
		out = append(out, tag)
	}
	return out, nil
}

func toIPv4(v interface{}) (net.IP, error) {
	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("'%s' is not a valid IPv4 address", s)
	}
	return ip.To4(), nil
}

func newInterfaceConfig(name string, icfg map[string]interface{}) (*NamedInterface, error) {
	ni := &NamedInterface{Name: name}
	for k, v := range icfg {
		var err error
		switch k {
		case "hw_vlan":
			ni.HWVLAN, err = toBool(v)
		case "vlan_tags":
			ni.VLANTags, err = toVLANTags(v)
		case "ipv4":
			ni.IPv4, err = toIPv4(v)
		default:
			return nil, fmt.Errorf("unrecognised parameter '%v'", k)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return ni, nil
}

func (cfg *Config) loadInterfaces() error {
	var interfaces map[string]interface{}

	// Extract the interface map from the configuration tree
	if got, ok := cfg.Map["interface"]; ok {
		interfaces, ok = got.(map[string]interface{})
		if !ok {
			return fmt.Errorf("interface instances must be named, e.g. '[interface.eth0]'")
		}
	} else {
		return fmt.Errorf("no interface table present")
	}

	// Iterate through the map and build interface config instances
	for name, got := range interfaces {
		imap, ok := got.(map[string]interface{})
		if !ok {
			return fmt.Errorf("interface instances must be named, e.g. '[interface.eth0]'")
		}
		icfg, err := newInterfaceConfig(name, imap)
		if err != nil {
			return fmt.Errorf("interface %v: %v", name, err)
		}
		cfg.Interfaces = append(cfg.Interfaces, *icfg)
	}
	return nil
}

func newConfig(tree *toml.Tree) (*Config, error) {
	cfg := &Config{Map: tree.ToMap()}
	err := cfg.loadInterfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to parse interfaces: %v", err)
	}
	return cfg, nil
}

// LoadFile loads configuration from the specified file.
func LoadFile(path string) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}
	return newConfig(tree)
}

// LoadString loads configuration from the specified string.
func LoadString(content string) (*Config, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load config string: %v", err)
	}
	return newConfig(tree)
}
