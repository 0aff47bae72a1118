//go:build !linux

package firewall

import (
	"fmt"

	"github.com/easzlab/ezfwd/pkg/rules"
	"go.uber.org/zap"
)

// IPTablesApplier is unavailable outside Linux; every Apply reports a failure.
type IPTablesApplier struct {
	path   string
	logger *zap.Logger
}

// NewIPTablesApplier creates an applier that rejects every descriptor.
func NewIPTablesApplier(path string, logger *zap.Logger) *IPTablesApplier {
	return &IPTablesApplier{path: path, logger: logger}
}

// Apply returns a failed Result without running anything.
func (a *IPTablesApplier) Apply(action Action, rule rules.Descriptor) Result {
	return Result{
		Action:  action,
		Rule:    rule,
		Command: Command(Tool(rule.Family), action, rule),
		Err:     fmt.Errorf("iptables is not supported on this platform"),
	}
}
