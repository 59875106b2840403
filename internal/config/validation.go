package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks struct tags first, then the rules that depend on which
// sink and repository are selected.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	switch cfg.Sink.Type {
	case "smb":
		if cfg.Sink.SMB.URL == "" {
			return fmt.Errorf("sink.smb.url is required for the smb sink")
		}
	case "local":
		if cfg.Sink.Local.RootPath == "" {
			return fmt.Errorf("sink.local.root_path is required for the local sink")
		}
	case "s3":
		if cfg.Sink.S3.Bucket == "" {
			return fmt.Errorf("sink.s3.bucket is required for the s3 sink")
		}
	}

	if cfg.Idempotent.Type == "badger" && cfg.Idempotent.Dir == "" {
		return fmt.Errorf("idempotent.dir is required for the badger repository")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
