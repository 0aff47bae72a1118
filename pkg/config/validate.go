package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// StructValidator validates domain specs using struct tags.
type StructValidator struct {
	validate *validator.Validate
}

// NewStructValidator creates a Validator that reports fields by their document names.
func NewStructValidator() *StructValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(validateAddressFamily, DomainConfig{})

	return &StructValidator{validate: validate}
}

// Validate checks every configured domain and stops at the first invalid one.
func (s *StructValidator) Validate(cfg *Config) error {
	for _, name := range cfg.DomainNames() {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Domain: name, Err: errors.New("domain name must not be empty")}
		}
		if err := s.validate.Struct(cfg.Domains[name]); err != nil {
			return &ValidationError{Domain: name, Err: describe(err)}
		}
	}
	return nil
}

// validateAddressFamily rejects a public_ip whose family differs from private_ip.
// IPv6 domains must set public_ip since the host address lookup is IPv4 only.
func validateAddressFamily(sl validator.StructLevel) {
	domain := sl.Current().Interface().(DomainConfig)
	privateIP := net.ParseIP(domain.PrivateIP)
	if privateIP == nil {
		return
	}
	if domain.PublicIP == "" {
		if privateIP.To4() == nil {
			sl.ReportError(domain.PublicIP, "public_ip", "PublicIP", "required_with_ipv6", "")
		}
		return
	}
	publicIP := net.ParseIP(domain.PublicIP)
	if publicIP == nil {
		return
	}
	if (publicIP.To4() == nil) != (privateIP.To4() == nil) {
		sl.ReportError(domain.PublicIP, "public_ip", "PublicIP", "same_family", "")
	}
}

// describe flattens validator field errors into one readable error.
func describe(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		namespace := fieldErr.Namespace()
		if _, rest, found := strings.Cut(namespace, "."); found {
			namespace = rest
		}
		messages = append(messages, fmt.Sprintf("%s: failed %q check (value %v)", namespace, fieldErr.Tag(), fieldErr.Value()))
	}
	return errors.New(strings.Join(messages, "; "))
}
