package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultConfigPath is where libvirt hook installations keep the domain document.
	DefaultConfigPath = "/etc/libvirt/hooks/ezfwd.json"
	// DefaultLockFile serializes concurrent hook invocations on one host.
	DefaultLockFile = "/run/ezfwd.lock"

	envPrefix = "EZFWD"
)

// Settings holds the runtime options of a single invocation.
type Settings struct {
	ConfigPath   string `mapstructure:"config"`
	LogLevel     string `mapstructure:"log_level"`
	Validate     bool   `mapstructure:"validate"`
	LockFile     string `mapstructure:"lock_file"`
	IPTablesPath string `mapstructure:"iptables_path"`
	PublicIP     string `mapstructure:"public_ip"`
	DryRun       bool   `mapstructure:"dry_run"`
}

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"config":        "config",
	"log-level":     "log_level",
	"validate":      "validate",
	"lock-file":     "lock_file",
	"iptables-path": "iptables_path",
	"public-ip":     "public_ip",
	"dry-run":       "dry_run",
}

// NewViper returns a viper instance with defaults and EZFWD_* environment overrides.
func NewViper() *viper.Viper {
	viperInstance := viper.New()

	viperInstance.SetDefault("config", DefaultConfigPath)
	viperInstance.SetDefault("log_level", "info")
	viperInstance.SetDefault("validate", true)
	viperInstance.SetDefault("lock_file", DefaultLockFile)
	viperInstance.SetDefault("iptables_path", "")
	viperInstance.SetDefault("public_ip", "")
	viperInstance.SetDefault("dry_run", false)

	viperInstance.SetEnvPrefix(envPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viperInstance.AutomaticEnv()

	return viperInstance
}

// AddFlags registers the settings flags on the given flag set.
func AddFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", DefaultConfigPath, "path to the domain forwarding document")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("validate", true, "validate the domain document against the schema")
	flags.String("lock-file", DefaultLockFile, "host-wide lock file, empty disables locking")
	flags.String("iptables-path", "", "path to the iptables binary, empty searches $PATH")
	flags.String("public-ip", "", "public IP to use instead of the default route address")
	flags.Bool("dry-run", false, "print firewall commands instead of executing them")
}

// BindFlags binds every registered settings flag to its viper key.
func BindFlags(viperInstance *viper.Viper, flags *pflag.FlagSet) error {
	for flagName, key := range flagKeys {
		flag := flags.Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := viperInstance.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", flagName, err)
		}
	}
	return nil
}

// LoadSettings unmarshals and validates the settings held by viperInstance.
func LoadSettings(viperInstance *viper.Viper) (*Settings, error) {
	var settings Settings
	if err := viperInstance.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &settings, nil
}

func (s *Settings) validate() error {
	if s.ConfigPath == "" {
		return fmt.Errorf("config path must not be empty")
	}
	if _, err := zapcore.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", s.LogLevel, err)
	}
	if s.PublicIP != "" && net.ParseIP(s.PublicIP) == nil {
		return fmt.Errorf("invalid public_ip %q", s.PublicIP)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (s *Settings) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// SchemaValidator returns the configured Validator, or nil when validation is disabled.
func (s *Settings) SchemaValidator() Validator {
	if !s.Validate {
		return nil
	}
	return NewStructValidator()
}
