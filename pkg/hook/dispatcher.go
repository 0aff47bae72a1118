package hook

import (
	"fmt"

	"github.com/easzlab/ezfwd/pkg/config"
	"github.com/easzlab/ezfwd/pkg/firewall"
	"github.com/easzlab/ezfwd/pkg/rules"
	"go.uber.org/zap"
)

// Event is a libvirt qemu hook operation.
type Event string

const (
	EventStart     Event = "start"
	EventStopped   Event = "stopped"
	EventReconnect Event = "reconnect"
)

// IsKnown reports whether the dispatcher acts on the event.
func (e Event) IsKnown() bool {
	switch e {
	case EventStart, EventStopped, EventReconnect:
		return true
	default:
		return false
	}
}

// Dispatcher maps (domain, event) pairs to rule applications.
type Dispatcher struct {
	cfg         *config.Config
	synthesizer *rules.Synthesizer
	applier     firewall.Applier
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher over a loaded configuration.
func NewDispatcher(cfg *config.Config, synthesizer *rules.Synthesizer, applier firewall.Applier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		synthesizer: synthesizer,
		applier:     applier,
		logger:      logger,
	}
}

// Dispatch applies the rules for an event. Unconfigured domains and unknown
// events are no-ops. The returned error is only set when the rule set could
// not be built; individual rule failures are carried in the Report.
func (d *Dispatcher) Dispatch(domainName string, event Event) (*Report, error) {
	report := &Report{Domain: domainName, Event: event}

	domain, ok := d.cfg.Lookup(domainName)
	if !ok {
		d.logger.Debug("domain not configured, nothing to do", zap.String("domain", domainName))
		return report, nil
	}
	report.Managed = true

	if !event.IsKnown() {
		d.logger.Debug("ignoring event",
			zap.String("domain", domainName),
			zap.String("event", string(event)),
		)
		return report, nil
	}

	descriptors, err := d.synthesizer.Synthesize(domain)
	if err != nil {
		return report, fmt.Errorf("failed to build rules for domain %q: %w", domainName, err)
	}

	switch event {
	case EventStopped:
		report.Results = d.applyAll(firewall.Delete, descriptors, report.Results)
	case EventStart:
		report.Results = d.applyAll(firewall.Insert, descriptors, report.Results)
	case EventReconnect:
		report.Results = d.applyAll(firewall.Delete, descriptors, report.Results)
		report.Results = d.applyAll(firewall.Insert, descriptors, report.Results)
	}

	d.logger.Info("dispatched event",
		zap.String("domain", domainName),
		zap.String("event", string(event)),
		zap.Int("rules", len(descriptors)),
		zap.Int("applied", report.Applied()),
		zap.Int("failed", len(report.Failures())),
	)
	return report, nil
}

// applyAll applies every descriptor in order and keeps going after failures.
func (d *Dispatcher) applyAll(action firewall.Action, descriptors []rules.Descriptor, results []firewall.Result) []firewall.Result {
	for _, descriptor := range descriptors {
		result := d.applier.Apply(action, descriptor)
		results = append(results, result)
		if result.OK() {
			continue
		}
		if action == firewall.Delete && firewall.IsNotExist(result.Err) {
			d.logger.Debug("rule not present", zap.String("command", result.String()))
			continue
		}
		d.logger.Warn("failed to apply rule",
			zap.String("action", action.String()),
			zap.String("command", result.String()),
			zap.Error(result.Err),
		)
	}
	return results
}
