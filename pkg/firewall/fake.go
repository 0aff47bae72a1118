package firewall

import (
	"sync"

	"github.com/easzlab/ezfwd/pkg/rules"
)

// Call is one recorded FakeApplier invocation.
type Call struct {
	Action Action
	Rule   rules.Descriptor
}

// FakeApplier records every application in memory without touching the host.
// FailWith, when set, decides the error returned for a call.
type FakeApplier struct {
	FailWith func(action Action, rule rules.Descriptor) error

	calls []Call
	mu    sync.Mutex
}

// NewFakeApplier creates an empty FakeApplier.
func NewFakeApplier() *FakeApplier {
	return &FakeApplier{}
}

// Apply records the call and returns the injected failure, if any.
func (f *FakeApplier) Apply(action Action, rule rules.Descriptor) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Action: action, Rule: rule})

	result := Result{
		Action:  action,
		Rule:    rule,
		Command: Command(Tool(rule.Family), action, rule),
	}
	if f.FailWith != nil {
		result.Err = f.FailWith(action, rule)
	}
	return result
}

// Calls returns a copy of the recorded calls in order.
func (f *FakeApplier) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]Call, len(f.calls))
	copy(result, f.calls)
	return result
}

// Reset forgets all recorded calls.
func (f *FakeApplier) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
