package runner

import (
	"fmt"
	"io"
	"net"

	"github.com/easzlab/ezfwd/pkg/config"
	"github.com/easzlab/ezfwd/pkg/firewall"
	"github.com/easzlab/ezfwd/pkg/flock"
	"github.com/easzlab/ezfwd/pkg/hook"
	"github.com/easzlab/ezfwd/pkg/hostnet"
	"github.com/easzlab/ezfwd/pkg/rules"
	"go.uber.org/zap"
)

// Runner wires the configuration, resolver, synthesizer and applier for one invocation.
type Runner struct {
	settings    *config.Settings
	cfg         *config.Config
	synthesizer *rules.Synthesizer
	dispatcher  *hook.Dispatcher
	logger      *zap.Logger
}

// New loads the domain document and builds the components selected by settings.
// Dry-run commands are written to out.
func New(settings *config.Settings, out io.Writer, logger *zap.Logger) (*Runner, error) {
	var applier firewall.Applier
	if settings.DryRun {
		applier = firewall.NewDryRunApplier(out)
	} else {
		applier = firewall.NewIPTablesApplier(settings.IPTablesPath, logger.Named("firewall"))
	}

	var resolver hostnet.Resolver
	if settings.PublicIP != "" {
		resolver = hostnet.Static{IP: net.ParseIP(settings.PublicIP)}
	} else {
		resolver = hostnet.NewResolver(logger.Named("hostnet"))
	}

	return newRunnerWithDeps(settings, resolver, applier, logger)
}

// newRunnerWithDeps builds a Runner with an injected resolver and applier.
func newRunnerWithDeps(settings *config.Settings, resolver hostnet.Resolver, applier firewall.Applier, logger *zap.Logger) (*Runner, error) {
	cfg, err := config.Load(settings.ConfigPath, settings.SchemaValidator())
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded domain document",
		zap.String("path", cfg.Path),
		zap.Int("domains", len(cfg.Domains)),
		zap.Bool("validated", settings.Validate),
	)

	synthesizer := rules.NewSynthesizer(hostnet.NewOnce(resolver))
	return &Runner{
		settings:    settings,
		cfg:         cfg,
		synthesizer: synthesizer,
		dispatcher:  hook.NewDispatcher(cfg, synthesizer, applier, logger.Named("hook")),
		logger:      logger,
	}, nil
}

// Run dispatches one lifecycle event while holding the host-wide lock.
// Unconfigured domains and ignored events return before the lock is taken.
func (r *Runner) Run(domainName, event string) (*hook.Report, error) {
	_, managed := r.cfg.Lookup(domainName)
	if !managed || !hook.Event(event).IsKnown() {
		r.logger.Debug("nothing to do",
			zap.String("domain", domainName),
			zap.String("event", event),
			zap.Bool("managed", managed),
		)
		return &hook.Report{Domain: domainName, Event: hook.Event(event), Managed: managed}, nil
	}

	if r.settings.LockFile != "" {
		lock, err := flock.Acquire(r.settings.LockFile)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				r.logger.Warn("failed to release lock", zap.Error(err))
			}
		}()
	}

	report, err := r.dispatcher.Dispatch(domainName, hook.Event(event))
	if err != nil {
		return report, err
	}

	if failed := failedCommands(report); len(failed) > 0 {
		r.logger.Warn("some rules were not applied",
			zap.String("domain", domainName),
			zap.String("event", event),
			zap.Int("failed", len(failed)),
			zap.Strings("commands", failed),
		)
	}
	return report, nil
}

// failedCommands lists the command lines of failed results. Deleting a rule
// that is already gone is not counted.
func failedCommands(report *hook.Report) []string {
	var commands []string
	for _, result := range report.Failures() {
		if result.Action == firewall.Delete && firewall.IsNotExist(result.Err) {
			continue
		}
		commands = append(commands, result.String())
	}
	return commands
}

// Rules returns the descriptors a start event would insert for the domain.
// ok is false when the domain is not configured.
func (r *Runner) Rules(domainName string) (descriptors []rules.Descriptor, ok bool, err error) {
	domain, ok := r.cfg.Lookup(domainName)
	if !ok {
		return nil, false, nil
	}
	descriptors, err = r.synthesizer.Synthesize(domain)
	if err != nil {
		return nil, true, fmt.Errorf("failed to build rules for domain %q: %w", domainName, err)
	}
	return descriptors, true, nil
}

// Config returns the loaded domain document.
func (r *Runner) Config() *config.Config {
	return r.cfg
}
