//go:build !linux

package hostnet

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// DefaultNetlinker is the platform Netlinker used by NewResolver.
var DefaultNetlinker Netlinker = &RealNetlinker{}

// RealNetlinker is a stub for platforms without netlink.
type RealNetlinker struct{}

func (r *RealNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return nil, fmt.Errorf("RouteList not supported on this platform")
}

func (r *RealNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	return nil, fmt.Errorf("LinkByIndex not supported on this platform")
}

func (r *RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return nil, fmt.Errorf("AddrList not supported on this platform")
}
