//go:build linux

package hostnet

import "github.com/vishvananda/netlink"

// DefaultNetlinker is the platform Netlinker used by NewResolver.
var DefaultNetlinker Netlinker = &RealNetlinker{}

// RealNetlinker queries the kernel through the netlink package.
type RealNetlinker struct{}

func (r *RealNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return netlink.RouteList(link, family)
}

func (r *RealNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	return netlink.LinkByIndex(index)
}

func (r *RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}
