package hook

import "github.com/easzlab/ezfwd/pkg/firewall"

// Report collects the outcome of one dispatch.
type Report struct {
	Domain  string
	Event   Event
	Managed bool // false when the domain is not configured
	Results []firewall.Result
}

// Applied returns the number of successful rule applications.
func (r *Report) Applied() int {
	count := 0
	for _, result := range r.Results {
		if result.OK() {
			count++
		}
	}
	return count
}

// Failures returns the results whose tool invocation failed.
func (r *Report) Failures() []firewall.Result {
	var failures []firewall.Result
	for _, result := range r.Results {
		if !result.OK() {
			failures = append(failures, result)
		}
	}
	return failures
}
