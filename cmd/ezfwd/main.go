package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/easzlab/ezfwd/pkg/config"
	"github.com/easzlab/ezfwd/pkg/firewall"
	"github.com/easzlab/ezfwd/pkg/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

// hookCommandName names the hidden subcommand that hook invocations are routed to.
const hookCommandName = "__hook"

// qemuOperations are the operations libvirt passes to the qemu hook.
var qemuOperations = map[string]bool{
	"prepare":   true,
	"start":     true,
	"started":   true,
	"stopped":   true,
	"release":   true,
	"migrate":   true,
	"restore":   true,
	"reconnect": true,
	"attach":    true,
}

func main() {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(routeArgs(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// routeArgs sends libvirt hook calls to the hook command so that a domain
// named like a subcommand is never taken for one.
func routeArgs(args []string) []string {
	flags := pflag.NewFlagSet("ezfwd", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	config.AddFlags(flags)
	if err := flags.Parse(args); err != nil {
		return args
	}
	positional := flags.Args()
	if len(positional) < 2 || !qemuOperations[positional[1]] {
		return args
	}
	return append([]string{hookCommandName}, args...)
}

func newRootCommand() *cobra.Command {
	viperInstance := config.NewViper()

	rootCmd := &cobra.Command{
		Use:   "ezfwd <domain> <event> [sub-event] [extra]",
		Short: "ezfwd - libvirt qemu hook for static port forwarding",
		Long: "Inserts or deletes iptables DNAT and FORWARD rules exposing host ports to a domain's private IP.\n" +
			"Install it as /etc/libvirt/hooks/qemu; libvirt calls it with the domain name and the operation.",
		Args:         cobra.RangeArgs(2, 4),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.BindFlags(viperInstance, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd, viperInstance, args[0], args[1])
		},
	}

	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newHookCommand(viperInstance))
	rootCmd.AddCommand(newCtlCommand(viperInstance))

	return rootCmd
}

func newHookCommand(viperInstance *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:    hookCommandName + " <domain> <event> [sub-event] [extra]",
		Hidden: true,
		Args:   cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd, viperInstance, args[0], args[1])
		},
	}
}

func newCtlCommand(viperInstance *viper.Viper) *cobra.Command {
	ctlCmd := &cobra.Command{
		Use:   "ctl",
		Short: "Inspect the domain document and the rules it produces",
	}

	ctlCmd.AddCommand(newRulesCommand(viperInstance))
	ctlCmd.AddCommand(newCheckCommand(viperInstance))
	ctlCmd.AddCommand(newVersionCommand())

	return ctlCmd
}

func newRulesCommand(viperInstance *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rules <domain>",
		Short: "Print the firewall commands a start event would run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRules(cmd, viperInstance, args[0])
		},
	}
}

func newCheckCommand(viperInstance *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the domain document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConfig(cmd, viperInstance)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ezfwd version %s\n", version)
		},
	}
}

// runHook dispatches one lifecycle event for a domain.
func runHook(cmd *cobra.Command, viperInstance *viper.Viper, domainName, event string) error {
	settings, err := config.LoadSettings(viperInstance)
	if err != nil {
		return err
	}

	logger := newLogger(settings.Level())
	defer logger.Sync()

	logger.Debug("hook invoked",
		zap.String("version", version),
		zap.String("domain", domainName),
		zap.String("event", event),
		zap.String("config", settings.ConfigPath),
		zap.Bool("dry_run", settings.DryRun),
	)

	r, err := runner.New(settings, cmd.OutOrStdout(), logger)
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return err
	}

	report, err := r.Run(domainName, event)
	if err != nil {
		logger.Error("failed to dispatch event",
			zap.String("domain", domainName),
			zap.String("event", event),
			zap.Error(err),
		)
		return err
	}

	logger.Debug("hook finished",
		zap.String("domain", domainName),
		zap.String("event", event),
		zap.Bool("managed", report.Managed),
		zap.Int("applied", report.Applied()),
		zap.Int("failed", len(report.Failures())),
	)
	return nil
}

// printRules prints the insert commands for a configured domain.
func printRules(cmd *cobra.Command, viperInstance *viper.Viper, domainName string) error {
	settings, err := config.LoadSettings(viperInstance)
	if err != nil {
		return err
	}

	logger := newLogger(settings.Level())
	defer logger.Sync()

	r, err := runner.New(settings, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}

	descriptors, ok, err := r.Rules(domainName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("domain %q is not configured in %s", domainName, settings.ConfigPath)
	}

	for _, descriptor := range descriptors {
		command := firewall.Command(firewall.Tool(descriptor.Family), firewall.Insert, descriptor)
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(command, " "))
	}
	return nil
}

// checkConfig loads the domain document and lists the configured domains.
func checkConfig(cmd *cobra.Command, viperInstance *viper.Viper) error {
	settings, err := config.LoadSettings(viperInstance)
	if err != nil {
		return err
	}

	cfg, err := config.Load(settings.ConfigPath, settings.SchemaValidator())
	if err != nil {
		return err
	}

	for _, name := range cfg.DomainNames() {
		domain := cfg.Domains[name]
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d port pairs\n", name, domain.PrivateIP, domain.PortMap.PairCount())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d domains OK\n", cfg.Path, len(cfg.Domains))
	return nil
}

// newLogger creates a zap console logger on stderr; libvirt keeps hook stdout for itself.
func newLogger(level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	loggerConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return logger
}
