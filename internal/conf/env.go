package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PARTSIMG_OCI_BASE_URL.
const EnvPrefix = "PARTSIMG"

// envBinding holds metadata for validated environment variable bindings.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"oci.base_url", "PARTSIMG_OCI_BASE_URL", validateEnvURL},
		{"oci.backend", "PARTSIMG_OCI_BACKEND", validateEnvBackend},
		{"oci.rate_limit", "PARTSIMG_OCI_RATE_LIMIT", validateEnvNonNegativeFloat},
		{"oci.s3.access_key", "PARTSIMG_OCI_S3_ACCESS_KEY", nil},
		{"oci.s3.secret_key", "PARTSIMG_OCI_S3_SECRET_KEY", nil},
		{"catalog.base_url", "PARTSIMG_CATALOG_BASE_URL", validateEnvURL},
		{"preload.batch_size", "PARTSIMG_PRELOAD_BATCH_SIZE", validateEnvPositiveInt},
		{"telemetry.sentry_dsn", "PARTSIMG_TELEMETRY_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars enables automatic PARTSIMG_ overrides for every key and validates
// the variables that carry structured values.
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var problems []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		value, ok := os.LookupEnv(binding.EnvVar)
		if !ok || value == "" || binding.Validate == nil {
			continue
		}
		if err := binding.Validate(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", binding.EnvVar, err))
		}
	}

	if len(problems) > 0 {
		return errors.Newf("invalid environment configuration: %s", strings.Join(problems, "; ")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", value)
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch value {
	case BackendHTTP, BackendS3:
		return nil
	}
	return fmt.Errorf("unknown backend %q (want %s or %s)", value, BackendHTTP, BackendS3)
}

func validateEnvNonNegativeFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	if f < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}
