package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"go.yaml.in/yaml/v3"
)

// Config is the parsed domain document: one forwarding spec per libvirt domain name.
type Config struct {
	Path    string
	Domains map[string]DomainConfig
}

// DomainConfig describes how a single domain is exposed on the host.
type DomainConfig struct {
	PublicIP  string  `yaml:"public_ip"  validate:"omitempty,ip"`
	PrivateIP string  `yaml:"private_ip" validate:"required,ip"`
	Interface string  `yaml:"interface"  validate:"omitempty,max=15"`
	PortMap   PortMap `yaml:"port_map"   validate:"required,min=1,dive"`
}

// HasPublicIP reports whether the domain overrides the host's resolved public IP.
func (d DomainConfig) HasPublicIP() bool {
	return d.PublicIP != ""
}

// PortMap keeps protocols in the order they are declared in the document.
type PortMap []ProtocolPorts

// ProtocolPorts holds the port pairs forwarded for one protocol.
type ProtocolPorts struct {
	Protocol string     `yaml:"protocol" validate:"oneof=tcp udp udplite sctp dccp icmp icmpv6"`
	Pairs    []PortPair `yaml:"pairs"    validate:"required,min=1,dive"`
}

// PortPair maps a public port on the host to a private port on the domain.
// It is written as a two-element sequence: [public_port, private_port].
type PortPair struct {
	Public  int `yaml:"public_port"  validate:"min=1,max=65535"`
	Private int `yaml:"private_port" validate:"min=1,max=65535"`
}

// PairCount returns the total number of port pairs across all protocols.
func (m PortMap) PairCount() int {
	count := 0
	for _, entry := range m {
		count += len(entry.Pairs)
	}
	return count
}

// UnmarshalYAML decodes a protocol mapping while preserving key order.
func (m *PortMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: port_map must be a mapping of protocol to port pairs", value.Line)
	}

	seen := make(map[string]bool, len(value.Content)/2)
	result := make(PortMap, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valueNode := value.Content[i], value.Content[i+1]
		protocol := keyNode.Value
		if seen[protocol] {
			return fmt.Errorf("line %d: duplicate protocol %q in port_map", keyNode.Line, protocol)
		}
		seen[protocol] = true

		var pairs []PortPair
		if err := valueNode.Decode(&pairs); err != nil {
			return fmt.Errorf("port_map %q: %w", protocol, err)
		}
		result = append(result, ProtocolPorts{Protocol: protocol, Pairs: pairs})
	}

	*m = result
	return nil
}

// UnmarshalYAML decodes a [public_port, private_port] sequence.
func (p *PortPair) UnmarshalYAML(value *yaml.Node) error {
	var ports []int
	if err := value.Decode(&ports); err != nil {
		return fmt.Errorf("line %d: port pair must be a sequence of integers: %w", value.Line, err)
	}
	if len(ports) != 2 {
		return fmt.Errorf("line %d: port pair must have exactly 2 elements, got %d", value.Line, len(ports))
	}
	p.Public = ports[0]
	p.Private = ports[1]
	return nil
}

// LoadError reports a missing or unparsable domain document.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ValidationError reports a schema violation found by a Validator.
type ValidationError struct {
	Domain string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("config validation failed: %v", e.Err)
	}
	return fmt.Sprintf("config validation failed for domain %q: %v", e.Domain, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validator checks a parsed document against a schema.
type Validator interface {
	Validate(cfg *Config) error
}

// Load reads and parses the domain document at path. When validator is nil
// no schema check is performed.
func Load(path string, validator Validator) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg.Path = path

	if validator == nil {
		return cfg, nil
	}
	if err := validator.Validate(cfg); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return nil, err
		}
		return nil, &ValidationError{Err: err}
	}

	return cfg, nil
}

// Parse decodes a JSON or YAML domain document. An empty document yields a
// Config with no domains.
func Parse(data []byte) (*Config, error) {
	domains := make(map[string]DomainConfig)
	if err := yaml.Unmarshal(data, &domains); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if domains == nil {
		domains = make(map[string]DomainConfig)
	}
	return &Config{Domains: domains}, nil
}

// Lookup returns the forwarding spec for the named domain.
func (c *Config) Lookup(name string) (DomainConfig, bool) {
	domain, ok := c.Domains[name]
	return domain, ok
}

// DomainNames returns the configured domain names in sorted order.
func (c *Config) DomainNames() []string {
	names := make([]string, 0, len(c.Domains))
	for name := range c.Domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
