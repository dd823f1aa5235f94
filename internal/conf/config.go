// Package conf loads partsimg settings from a YAML file, PARTSIMG_ environment
// variables and command-line flags.
package conf

import (
	"fmt"
	"sync"
	"time"

	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/spf13/viper"
)

// Object store backends.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

// Settings is the complete application configuration.
type Settings struct {
	Debug     bool                 `mapstructure:"debug" yaml:"debug"`
	OCI       OCISettings          `mapstructure:"oci" yaml:"oci"`
	Images    ImageSettings        `mapstructure:"images" yaml:"images"`
	Preload   PreloadSettings      `mapstructure:"preload" yaml:"preload"`
	Catalog   CatalogSettings      `mapstructure:"catalog" yaml:"catalog"`
	Server    ServerSettings       `mapstructure:"server" yaml:"server"`
	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
}

// OCISettings configures access to the object store holding catalog artwork.
type OCISettings struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`   // http or s3
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"` // origin of the read endpoint
	ReadPath      string        `mapstructure:"read_path" yaml:"read_path"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxObjectSize int64         `mapstructure:"max_object_size" yaml:"max_object_size"`
	RateLimit     float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second, 0 = unlimited
	S3            S3Settings    `mapstructure:"s3" yaml:"s3"`
}

// S3Settings configures direct bucket access for the s3 backend.
type S3Settings struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	Region    string `mapstructure:"region" yaml:"region"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// ImageSettings configures resolution behaviour.
type ImageSettings struct {
	FallbackRef      string            `mapstructure:"fallback_ref" yaml:"fallback_ref"`
	CoalesceInflight bool              `mapstructure:"coalesce_inflight" yaml:"coalesce_inflight"`
	Folders          map[string]string `mapstructure:"folders" yaml:"folders"` // folder -> remote prefix
}

// PreloadSettings configures the batch preloader.
type PreloadSettings struct {
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size"`
	WaveDelay time.Duration `mapstructure:"wave_delay" yaml:"wave_delay"`
}

// CatalogSettings configures the model name lookup.
type CatalogSettings struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	ModelPath string        `mapstructure:"model_path" yaml:"model_path"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration into Settings using the global viper instance, which
// also carries the bound command-line flags.
func Load() (*Settings, error) {
	settings, err := LoadWith(viper.GetViper())
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// LoadWith reads configuration through v. An explicit config file may be set
// beforehand with v.SetConfigFile; otherwise the default search paths are used.
func LoadWith(v *viper.Viper) (*Settings, error) {
	if err := initViper(v); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// initViper applies defaults and environment bindings, then reads the config file if any.
func initViper(v *viper.Viper) error {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return err
	}

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// defaults and environment are enough to run
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", v.ConfigFileUsed()).
			Build()
	}
	return nil
}

// GetSettings returns the settings of the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
