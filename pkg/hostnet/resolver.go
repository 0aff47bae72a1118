package hostnet

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

// familyV4 is the netlink address family for IPv4 queries.
const familyV4 = syscall.AF_INET

// Resolver determines the host's externally reachable IP address.
type Resolver interface {
	PublicIP() (net.IP, error)
}

// Netlinker abstracts the netlink queries used to find the default route address.
type Netlinker interface {
	RouteList(link netlink.Link, family int) ([]netlink.Route, error)
	LinkByIndex(index int) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

// ResolutionError reports that the default route or its address could not be determined.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to resolve host public IP: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to resolve host public IP: %s", e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NetlinkResolver reads the address of the interface carrying the IPv4 default route.
type NetlinkResolver struct {
	netlinker Netlinker
	logger    *zap.Logger
}

// NewResolver creates a NetlinkResolver backed by the platform netlink implementation.
func NewResolver(logger *zap.Logger) *NetlinkResolver {
	return newResolverWithNetlinker(DefaultNetlinker, logger)
}

// newResolverWithNetlinker creates a NetlinkResolver with an injected Netlinker.
func newResolverWithNetlinker(netlinker Netlinker, logger *zap.Logger) *NetlinkResolver {
	return &NetlinkResolver{
		netlinker: netlinker,
		logger:    logger,
	}
}

// PublicIP returns the first global unicast IPv4 address of the default route interface.
func (r *NetlinkResolver) PublicIP() (net.IP, error) {
	route, err := r.defaultRoute()
	if err != nil {
		return nil, err
	}

	link, err := r.netlinker.LinkByIndex(route.LinkIndex)
	if err != nil {
		return nil, &ResolutionError{Reason: fmt.Sprintf("default route link index %d not found", route.LinkIndex), Err: err}
	}
	linkName := link.Attrs().Name

	addrs, err := r.netlinker.AddrList(link, familyV4)
	if err != nil {
		return nil, &ResolutionError{Reason: fmt.Sprintf("failed to list addresses of %s", linkName), Err: err}
	}

	for _, addr := range addrs {
		if addr.IPNet == nil || !addr.IP.IsGlobalUnicast() {
			continue
		}
		r.logger.Debug("resolved host public IP",
			zap.String("interface", linkName),
			zap.String("ip", addr.IP.String()),
		)
		return addr.IP, nil
	}

	return nil, &ResolutionError{Reason: fmt.Sprintf("interface %s has no global IPv4 address", linkName)}
}

// defaultRoute picks the IPv4 default route with the lowest priority.
func (r *NetlinkResolver) defaultRoute() (*netlink.Route, error) {
	routes, err := r.netlinker.RouteList(nil, familyV4)
	if err != nil {
		return nil, &ResolutionError{Reason: "failed to list routes", Err: err}
	}

	var best *netlink.Route
	for i := range routes {
		route := &routes[i]
		if !isDefaultRoute(route) {
			continue
		}
		if best == nil || route.Priority < best.Priority {
			best = route
		}
	}
	if best == nil {
		return nil, &ResolutionError{Reason: "no default route"}
	}
	return best, nil
}

// isDefaultRoute accepts both a nil destination and an explicit 0.0.0.0/0.
func isDefaultRoute(route *netlink.Route) bool {
	if route.LinkIndex <= 0 {
		return false
	}
	if route.Dst == nil {
		return true
	}
	ones, _ := route.Dst.Mask.Size()
	return ones == 0 && route.Dst.IP.IsUnspecified()
}

// Static always returns a fixed address.
type Static struct {
	IP net.IP
}

// PublicIP returns the fixed address.
func (s Static) PublicIP() (net.IP, error) {
	if s.IP == nil {
		return nil, &ResolutionError{Reason: "no static address configured"}
	}
	return s.IP, nil
}

// Once memoizes the result of a Resolver: the wrapped resolver runs at most once,
// and only when an address is first requested.
type Once struct {
	resolver Resolver
	once     sync.Once
	ip       net.IP
	err      error
}

// NewOnce wraps resolver so it is queried at most once.
func NewOnce(resolver Resolver) *Once {
	return &Once{resolver: resolver}
}

// PublicIP returns the memoized address or error.
func (o *Once) PublicIP() (net.IP, error) {
	o.once.Do(func() {
		o.ip, o.err = o.resolver.PublicIP()
	})
	return o.ip, o.err
}

// IsResolutionError reports whether err was caused by host address resolution.
func IsResolutionError(err error) bool {
	var resolutionErr *ResolutionError
	return errors.As(err, &resolutionErr)
}
