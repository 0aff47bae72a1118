package firewall

import (
	"errors"
	"fmt"
	"strings"

	"github.com/easzlab/ezfwd/pkg/rules"
)

// Action selects whether a rule is added to or removed from its chain.
type Action int

const (
	Insert Action = iota
	Delete
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// Flag returns the firewall tool token for the action.
func (a Action) Flag() string {
	if a == Delete {
		return "-D"
	}
	return "-I"
}

// Result is the outcome of applying one descriptor. A non-nil Err is a
// rule application failure; it never stops the remaining applications.
type Result struct {
	Action  Action
	Rule    rules.Descriptor
	Command []string
	Err     error
}

// OK reports whether the firewall tool accepted the rule change.
func (r Result) OK() bool {
	return r.Err == nil
}

// String returns the command line the result was produced by.
func (r Result) String() string {
	return strings.Join(r.Command, " ")
}

// Applier executes rule descriptors against the host firewall.
// Apply never panics on tool failures; they are reported in the Result.
type Applier interface {
	Apply(action Action, rule rules.Descriptor) Result
}

// Tool returns the firewall binary name for a rule family.
func Tool(family rules.Family) string {
	if family == rules.IPv6 {
		return "ip6tables"
	}
	return "iptables"
}

// Command builds the full tool invocation for a descriptor:
// <tool> -t <table> <-I|-D> <chain> <spec...>
func Command(tool string, action Action, rule rules.Descriptor) []string {
	command := []string{tool, "-t", rule.Table, action.Flag(), rule.Chain}
	return append(command, rule.Spec()...)
}

// IsNotExist reports whether err means the rule, chain or target was not found.
// This is the routine outcome of deleting rules that were never inserted.
func IsNotExist(err error) bool {
	var notExist interface{ IsNotExist() bool }
	if errors.As(err, &notExist) {
		return notExist.IsNotExist()
	}
	return false
}
