//go:build linux

package firewall

import (
	"fmt"
	"sync"

	"github.com/coreos/go-iptables/iptables"
	"github.com/easzlab/ezfwd/pkg/rules"
	"go.uber.org/zap"
)

// insertPosition puts inserted rules at the head of their chain.
const insertPosition = 1

// IPTablesApplier applies descriptors with iptables/ip6tables using coreos/go-iptables.
type IPTablesApplier struct {
	path    string
	handles map[rules.Family]*iptables.IPTables
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewIPTablesApplier creates an applier. An empty path looks the tool up in $PATH.
// Handles are created on first use per address family.
func NewIPTablesApplier(path string, logger *zap.Logger) *IPTablesApplier {
	return &IPTablesApplier{
		path:    path,
		handles: make(map[rules.Family]*iptables.IPTables),
		logger:  logger,
	}
}

// Apply runs one iptables invocation for the descriptor.
func (a *IPTablesApplier) Apply(action Action, rule rules.Descriptor) Result {
	result := Result{
		Action:  action,
		Rule:    rule,
		Command: Command(a.tool(rule.Family), action, rule),
	}

	ipt, err := a.handle(rule.Family)
	if err != nil {
		result.Err = err
		return result
	}

	switch action {
	case Insert:
		result.Err = ipt.Insert(rule.Table, rule.Chain, insertPosition, rule.Spec()...)
	case Delete:
		result.Err = ipt.Delete(rule.Table, rule.Chain, rule.Spec()...)
	default:
		result.Err = fmt.Errorf("unsupported action %v", action)
	}

	if result.Err == nil {
		a.logger.Debug("applied rule", zap.String("command", result.String()))
	}
	return result
}

func (a *IPTablesApplier) tool(family rules.Family) string {
	if a.path != "" && family == rules.IPv4 {
		return a.path
	}
	return Tool(family)
}

// handle returns the cached go-iptables handle for family, creating it on first use.
func (a *IPTablesApplier) handle(family rules.Family) (*iptables.IPTables, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ipt, ok := a.handles[family]; ok {
		return ipt, nil
	}

	var (
		ipt *iptables.IPTables
		err error
	)
	switch {
	case family == rules.IPv6:
		ipt, err = iptables.New(iptables.IPFamily(iptables.ProtocolIPv6))
	case a.path != "":
		ipt, err = iptables.New(iptables.IPFamily(iptables.ProtocolIPv4), iptables.Path(a.path))
	default:
		ipt, err = iptables.New(iptables.IPFamily(iptables.ProtocolIPv4))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s handle: %w", Tool(family), err)
	}
	a.handles[family] = ipt
	return ipt, nil
}
