package firewall

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/easzlab/ezfwd/pkg/rules"
)

// DryRunApplier prints each command line instead of executing it.
type DryRunApplier struct {
	out io.Writer
	mu  sync.Mutex
}

// NewDryRunApplier creates an applier that writes commands to out.
func NewDryRunApplier(out io.Writer) *DryRunApplier {
	return &DryRunApplier{out: out}
}

// Apply writes the command for the descriptor. Write failures are reported in the Result.
func (a *DryRunApplier) Apply(action Action, rule rules.Descriptor) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := Result{
		Action:  action,
		Rule:    rule,
		Command: Command(Tool(rule.Family), action, rule),
	}
	if _, err := fmt.Fprintln(a.out, strings.Join(result.Command, " ")); err != nil {
		result.Err = fmt.Errorf("failed to write command: %w", err)
	}
	return result
}
