package rules

import (
	"fmt"
	"net"
	"strconv"

	"github.com/easzlab/ezfwd/pkg/config"
)

const (
	TableNAT    = "nat"
	TableFilter = "filter"

	ChainPrerouting = "PREROUTING"
	ChainForward    = "FORWARD"

	TargetDNAT   = "DNAT"
	TargetAccept = "ACCEPT"
)

// Family selects the firewall tool a descriptor is applied with.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Descriptor is one firewall rule to insert or delete. Two descriptors with
// equal fields describe the same rule.
type Descriptor struct {
	Family       Family
	Table        string
	Chain        string
	Protocol     string
	Destination  string // matched destination IP, empty for no match
	DestPort     int
	OutInterface string // matched output interface, empty for no match
	Target       string
	ToDest       string // DNAT target address, only for TargetDNAT
}

// Spec returns the match and target arguments of the rule, without table,
// action or chain.
func (d Descriptor) Spec() []string {
	spec := []string{"-p", d.Protocol}
	if d.Destination != "" {
		spec = append(spec, "-d", d.Destination)
	}
	spec = append(spec, "--dport", strconv.Itoa(d.DestPort), "-j", d.Target)
	if d.ToDest != "" {
		spec = append(spec, "--to", d.ToDest)
	}
	if d.OutInterface != "" {
		spec = append(spec, "-o", d.OutInterface)
	}
	return spec
}

// String returns a compact form used in logs.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s %v", d.Table, d.Chain, d.Spec())
}

// PublicIPResolver supplies the default public address for domains without one.
type PublicIPResolver interface {
	PublicIP() (net.IP, error)
}

// Synthesizer expands domain specs into rule descriptors.
type Synthesizer struct {
	resolver PublicIPResolver
}

// NewSynthesizer creates a Synthesizer that falls back to resolver for the public IP.
func NewSynthesizer(resolver PublicIPResolver) *Synthesizer {
	return &Synthesizer{resolver: resolver}
}

// Synthesize returns two descriptors per port pair, in declaration order: the
// NAT PREROUTING redirect followed by its FORWARD accept. Repeated pairs are
// not deduplicated.
func (s *Synthesizer) Synthesize(domain config.DomainConfig) ([]Descriptor, error) {
	publicIP, err := s.publicIP(domain)
	if err != nil {
		return nil, err
	}

	family := familyOf(domain.PrivateIP)
	descriptors := make([]Descriptor, 0, 2*domain.PortMap.PairCount())
	for _, entry := range domain.PortMap {
		for _, pair := range entry.Pairs {
			descriptors = append(descriptors,
				Descriptor{
					Family:      family,
					Table:       TableNAT,
					Chain:       ChainPrerouting,
					Protocol:    entry.Protocol,
					Destination: publicIP,
					DestPort:    pair.Public,
					Target:      TargetDNAT,
					ToDest:      joinHostPort(domain.PrivateIP, pair.Private),
				},
				Descriptor{
					Family:       family,
					Table:        TableFilter,
					Chain:        ChainForward,
					Protocol:     entry.Protocol,
					DestPort:     pair.Private,
					OutInterface: domain.Interface,
					Target:       TargetAccept,
				},
			)
		}
	}
	return descriptors, nil
}

// publicIP prefers the domain's own public_ip; the resolver is only consulted
// when it is absent.
func (s *Synthesizer) publicIP(domain config.DomainConfig) (string, error) {
	if domain.HasPublicIP() {
		return domain.PublicIP, nil
	}
	if s.resolver == nil {
		return "", fmt.Errorf("domain has no public_ip and no host resolver is configured")
	}
	ip, err := s.resolver.PublicIP()
	if err != nil {
		return "", err
	}
	return ip.String(), nil
}

func familyOf(address string) Family {
	ip := net.ParseIP(address)
	if ip != nil && ip.To4() == nil {
		return IPv6
	}
	return IPv4
}

// joinHostPort formats a DNAT target; IPv6 addresses are bracketed.
func joinHostPort(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}
